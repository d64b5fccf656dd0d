// ABOUTME: Local similarity-search backend over SQLite vectors
// ABOUTME: Embeds text through a named embedding source before insert and query
package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/harper/sidekick-pipeline/internal/models"
	"github.com/harper/sidekick-pipeline/internal/storage/sqlite"
)

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Index stores and searches embedded items per collection
type Index struct {
	store         *sqlite.VectorStore
	defaultSource string

	mu        sync.RWMutex
	embedders map[string]Embedder
}

// NewIndex creates an Index whose default embedding source is source
func NewIndex(store *sqlite.VectorStore, source string, embedder Embedder) *Index {
	idx := &Index{
		store:         store,
		defaultSource: source,
		embedders:     make(map[string]Embedder),
	}
	if embedder != nil {
		idx.embedders[source] = embedder
	}
	return idx
}

// RegisterEmbedder adds or replaces an embedding source
func (i *Index) RegisterEmbedder(source string, embedder Embedder) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.embedders[source] = embedder
}

func (i *Index) embedderFor(source string) (Embedder, error) {
	if source == "" {
		source = i.defaultSource
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	e, ok := i.embedders[source]
	if !ok {
		return nil, fmt.Errorf("unknown embedding source %q", source)
	}
	return e, nil
}

// Insert embeds text and stores it in collection under metadata["key"], or under hash
// when no key is given. An item whose stored hash already matches is not re-embedded.
func (i *Index) Insert(ctx context.Context, collection, text, hash string, metadata map[string]any, source string) error {
	key, _ := metadata["key"].(string)
	if key == "" {
		key = hash
	}
	stored, err := i.store.StoredHash(ctx, collection, key)
	if err != nil {
		return fmt.Errorf("failed to look up %s/%s: %w", collection, key, err)
	}
	if stored == hash {
		return nil
	}

	e, err := i.embedderFor(source)
	if err != nil {
		return err
	}
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed item for %s: %w", collection, err)
	}
	return i.store.Upsert(ctx, sqlite.VectorRecord{
		Collection: collection,
		Key:        key,
		Hash:       hash,
		Text:       text,
		Metadata:   metadata,
		Source:     source,
		Vector:     vec,
	})
}

// Hashes maps each item key already stored in collection to its content hash
func (i *Index) Hashes(ctx context.Context, collection string) (map[string]string, error) {
	return i.store.Hashes(ctx, collection)
}

// Query embeds text and returns up to topK hits scoring at least threshold
func (i *Index) Query(ctx context.Context, collection, text string, topK int, threshold float64, source string) ([]models.SimilarityHit, error) {
	e, err := i.embedderFor(source)
	if err != nil {
		return nil, err
	}
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := i.store.Search(ctx, collection, vec, topK, threshold)
	if err != nil {
		return nil, err
	}

	hits := make([]models.SimilarityHit, len(matches))
	for n, m := range matches {
		hits[n] = models.SimilarityHit{Text: m.Text, Metadata: m.Metadata, Score: m.Score}
	}
	return hits, nil
}

// ListCollections returns collections holding at least one item
func (i *Index) ListCollections(ctx context.Context) ([]string, error) {
	return i.store.Collections(ctx)
}
