// ABOUTME: In-process blob store for tests and ephemeral runs
// ABOUTME: Also defines the blob keys shared by every persistence backend
package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Blob keys
const (
	MetadataPrefix = "meta:"
	SettingsKey    = "settings"
	CacheKey       = "cache:summaries"
)

// MetadataKey returns the blob key holding a conversation's compaction state
func MetadataKey(conversationID string) string {
	return MetadataPrefix + conversationID
}

// MemoryStore keeps blobs in a map
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Load returns a copy of the blob at key, or nil when absent
func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Store saves a copy of data at key
func (s *MemoryStore) Store(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	s.blobs[key] = buf
	return nil
}

// Delete removes the blob at key
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// Keys lists keys with the given prefix in sorted order
func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
