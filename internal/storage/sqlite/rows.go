// ABOUTME: Table-memory rows stored in SQLite
// ABOUTME: Rows become relevance candidates for prompt injection
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harper/sidekick-pipeline/internal/models"
)

// RowStore handles table-memory rows
type RowStore struct {
	db *DB
}

// NewRowStore creates a new RowStore
func NewRowStore(db *DB) *RowStore {
	return &RowStore{db: db}
}

// Put inserts or replaces a row keyed by collection and key
func (s *RowStore) Put(ctx context.Context, row models.Candidate) error {
	if row.Collection == "" || row.Key == "" {
		return fmt.Errorf("row needs both collection and key")
	}
	meta, err := json.Marshal(row.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO table_rows (collection, row_key, grp, text, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, row_key) DO UPDATE SET
			grp = excluded.grp,
			text = excluded.text,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, row.Collection, row.Key, row.Group, row.Text, string(meta), time.Now().UTC())
	return err
}

// Delete removes a row
func (s *RowStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM table_rows WHERE collection = ? AND row_key = ?`, collection, key)
	return err
}

// Rows returns every row ordered by collection and key
func (s *RowStore) Rows(ctx context.Context) ([]models.Candidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT collection, row_key, grp, text, metadata
		FROM table_rows
		ORDER BY collection, row_key
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Candidate
	for rows.Next() {
		var (
			c    models.Candidate
			grp  *string
			meta *string
		)
		if err := rows.Scan(&c.Collection, &c.Key, &grp, &c.Text, &meta); err != nil {
			return nil, err
		}
		if grp != nil {
			c.Group = *grp
		}
		if meta != nil && *meta != "" && *meta != "null" {
			_ = json.Unmarshal([]byte(*meta), &c.Metadata)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Probe checks that the table is reachable
func (s *RowStore) Probe(ctx context.Context) error {
	var n int
	return s.db.QueryRow(ctx, `SELECT COUNT(*) FROM table_rows`).Scan(&n)
}
