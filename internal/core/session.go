// ABOUTME: Per-conversation handoff between the trigger and assembly paths
// ABOUTME: Each conversation keeps only the record of its latest generation request
package core

import (
	"sync"
	"time"

	"github.com/harper/sidekick-pipeline/internal/models"
)

// RunRecord describes the most recent generation request seen by the trigger
type RunRecord struct {
	RunType         models.RunType
	Capacity        int
	TranscriptLen   int
	LastMessageHash string
	RecordedAt      time.Time
}

// Sessions holds run records keyed by conversation id
type Sessions struct {
	mu   sync.Mutex
	runs map[string]RunRecord
}

// NewSessions creates an empty registry
func NewSessions() *Sessions {
	return &Sessions{runs: make(map[string]RunRecord)}
}

// Record replaces the run record for a conversation
func (s *Sessions) Record(conversationID string, run RunRecord) {
	if run.RecordedAt.IsZero() {
		run.RecordedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[conversationID] = run
}

// LastRun returns the latest run record for a conversation
func (s *Sessions) LastRun(conversationID string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[conversationID]
	return run, ok
}

// Forget drops a conversation's record
func (s *Sessions) Forget(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, conversationID)
}
