// ABOUTME: Summary cache entries and aggregate statistics
// ABOUTME: Entries are keyed by item uid and validated by content hash
package models

import "time"

// CacheItem is content submitted for summarization
type CacheItem struct {
	UID     string   `json:"uid"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// CacheEntry is a stored two-level summary
type CacheEntry struct {
	UID            string    `json:"uid"`
	ContentHash    string    `json:"content_hash"`
	Level1         string    `json:"level1"`
	Level2         string    `json:"level2"`
	Snippet        string    `json:"snippet,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	ManuallyEdited bool      `json:"manually_edited,omitempty"`
}

// Matches reports whether the entry was built from content with this hash
func (e *CacheEntry) Matches(hash string) bool {
	return e != nil && e.ContentHash == hash
}

// CacheStats is the snapshot of the most recent fill pass
type CacheStats struct {
	Hits       int       `json:"hits"`
	Misses     int       `json:"misses"`
	Entries    int       `json:"entries"`
	LastUpdate time.Time `json:"last_update"`
}
