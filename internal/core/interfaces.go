// ABOUTME: Collaborator contracts the pipeline depends on
// ABOUTME: Completion, token counting, similarity search, table memory, and blob persistence
package core

import (
	"context"

	"github.com/harper/sidekick-pipeline/internal/models"
)

// Completer runs a single system/user completion and returns the reply text
type Completer interface {
	Complete(ctx context.Context, req models.CompletionRequest) (string, error)
}

// TokenCounter estimates the token length of text
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// Similarity is the vector search collaborator
type Similarity interface {
	Insert(ctx context.Context, collection, text, hash string, metadata map[string]any, source string) error
	Query(ctx context.Context, collection, text string, topK int, threshold float64, source string) ([]models.SimilarityHit, error)
	ListCollections(ctx context.Context) ([]string, error)
}

// SimilarityInventory is implemented by backends that can report what a collection already holds.
// Hashes maps item key to content hash.
type SimilarityInventory interface {
	Hashes(ctx context.Context, collection string) (map[string]string, error)
}

// TableMemory supplies structured rows that can be injected into prompts
type TableMemory interface {
	Rows(ctx context.Context) ([]models.Candidate, error)
}

// BlobStore persists opaque JSON documents by key.
// Load returns nil, nil for a missing key.
type BlobStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
}

// Prober is implemented by collaborators that can report their own availability
type Prober interface {
	Probe(ctx context.Context) error
}
