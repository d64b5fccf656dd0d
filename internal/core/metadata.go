// ABOUTME: Per-conversation compaction state persisted through the blob store
// ABOUTME: Saves are visible immediately and written to storage after a debounce
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/harper/sidekick-pipeline/internal/models"
	"github.com/harper/sidekick-pipeline/internal/storage"
	"github.com/harper/sidekick-pipeline/internal/util"
)

// MetadataStore loads and saves CompactionState documents
type MetadataStore struct {
	store    BlobStore
	debounce *util.Debouncer
	logger   Logger

	mu    sync.Mutex
	cache map[string]*models.CompactionState
}

// NewMetadataStore creates a store writing through store after delay
func NewMetadataStore(store BlobStore, delay time.Duration, logger Logger) *MetadataStore {
	return &MetadataStore{
		store:    store,
		debounce: util.NewDebouncer(delay),
		logger:   orNoop(logger),
		cache:    make(map[string]*models.CompactionState),
	}
}

// Load returns the latest state for a conversation, or nil when none exists
func (m *MetadataStore) Load(ctx context.Context, conversationID string) (*models.CompactionState, error) {
	m.mu.Lock()
	if st, ok := m.cache[conversationID]; ok {
		m.mu.Unlock()
		return st, nil
	}
	m.mu.Unlock()

	data, err := m.store.Load(ctx, storage.MetadataKey(conversationID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var st models.CompactionState
	if err := json.Unmarshal(data, &st); err != nil {
		// A corrupt document behaves like no prior state
		m.logger.Warn("discarding unreadable compaction state", "conversation", conversationID, "error", err)
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.cache[conversationID]; ok {
		return cached, nil
	}
	m.cache[conversationID] = &st
	return &st, nil
}

// Save replaces the state for a conversation and schedules the write
func (m *MetadataStore) Save(ctx context.Context, conversationID string, st *models.CompactionState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode compaction state: %w", err)
	}

	m.mu.Lock()
	m.cache[conversationID] = st
	m.mu.Unlock()

	key := storage.MetadataKey(conversationID)
	m.debounce.Trigger(key, func() {
		// The request context may be gone by the time the debounce fires
		if err := m.store.Store(context.WithoutCancel(ctx), key, data); err != nil {
			m.logger.Error("failed to persist compaction state", "conversation", conversationID, "error", err)
		}
	})
	return nil
}

// Flush writes every pending save now
func (m *MetadataStore) Flush() {
	m.debounce.Flush()
}
