// ABOUTME: Embedding storage for the local similarity backend
// ABOUTME: Stores vectors as BLOBs per collection and ranks by cosine similarity
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// VectorRecord is one embedded item
type VectorRecord struct {
	Collection string
	Key        string
	Hash       string
	Text       string
	Metadata   map[string]any
	Source     string
	Vector     []float64
}

// VectorMatch is a scored search result
type VectorMatch struct {
	Text     string
	Metadata map[string]any
	Score    float64
}

// VectorStore handles embedding persistence
type VectorStore struct {
	db *DB
}

// NewVectorStore creates a new VectorStore
func NewVectorStore(db *DB) *VectorStore {
	return &VectorStore{db: db}
}

// Upsert saves a record. Records are unique per collection and item key,
// so a new hash for an existing key replaces the old row.
func (s *VectorStore) Upsert(ctx context.Context, rec VectorRecord) error {
	if rec.Key == "" {
		rec.Key = rec.Hash
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("empty vector for %s/%s", rec.Collection, rec.Key)
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO vectors (id, collection, item_key, hash, text, metadata, source, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, item_key) DO UPDATE SET
			hash = excluded.hash,
			text = excluded.text,
			metadata = excluded.metadata,
			source = excluded.source,
			vector = excluded.vector
	`, uuid.New().String(), rec.Collection, rec.Key, rec.Hash, rec.Text, string(meta), rec.Source, vectorToBlob(rec.Vector), time.Now().UTC())
	return err
}

// Search ranks a collection against query and keeps matches scoring at least threshold
func (s *VectorStore) Search(ctx context.Context, collection string, query []float64, topK int, threshold float64) ([]VectorMatch, error) {
	rows, err := s.db.Query(ctx, `
		SELECT text, metadata, vector
		FROM vectors
		WHERE collection = ?
	`, collection)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []VectorMatch
	for rows.Next() {
		var (
			text string
			meta string
			blob []byte
		)
		if err := rows.Scan(&text, &meta, &blob); err != nil {
			return nil, err
		}

		score := CosineSimilarity(query, blobToVector(blob))
		if score < threshold {
			continue
		}

		match := VectorMatch{Text: text, Score: score}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &match.Metadata)
		}
		results = append(results, match)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sort by similarity descending
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Hashes maps every item key in a collection to its stored content hash
func (s *VectorStore) Hashes(ctx context.Context, collection string) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `SELECT item_key, hash FROM vectors WHERE collection = ?`, collection)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var key, hash string
		if err := rows.Scan(&key, &hash); err != nil {
			return nil, err
		}
		out[key] = hash
	}
	return out, rows.Err()
}

// StoredHash returns the content hash recorded for one item, or "" when absent
func (s *VectorStore) StoredHash(ctx context.Context, collection, key string) (string, error) {
	var hash string
	err := s.db.QueryRow(ctx, `SELECT hash FROM vectors WHERE collection = ? AND item_key = ?`, collection, key).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// Collections lists collection ids that hold at least one record
func (s *VectorStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT collection FROM vectors ORDER BY collection`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of records in a collection
func (s *VectorStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM vectors WHERE collection = ?`, collection).Scan(&n)
	return n, err
}

// vectorToBlob converts a float64 slice to binary blob
func vectorToBlob(vector []float64) []byte {
	blob := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(blob[i*8:], math.Float64bits(v))
	}
	return blob
}

// blobToVector converts a binary blob to float64 slice
func blobToVector(blob []byte) []float64 {
	count := len(blob) / 8
	vector := make([]float64, count)
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint64(blob[i*8:])
		vector[i] = math.Float64frombits(bits)
	}
	return vector
}

// CosineSimilarity calculates cosine similarity between two vectors
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
