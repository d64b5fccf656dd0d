// ABOUTME: Sentinel errors and structured error context for pipeline operations
// ABOUTME: Hook boundaries turn these into status strings instead of returning them
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline operations.
var (
	// ErrDisabled indicates the pipeline is switched off in settings.
	ErrDisabled = errors.New("pipeline disabled")

	// ErrIneligibleRun indicates the run type never triggers compaction or assembly.
	ErrIneligibleRun = errors.New("run type not eligible")

	// ErrNotEnoughHistory indicates the transcript lacks surplus messages to summarize.
	ErrNotEnoughHistory = errors.New("not enough history to summarize")

	// ErrBelowThreshold indicates occupancy has not reached the start threshold.
	ErrBelowThreshold = errors.New("occupancy below threshold")

	// ErrCoolingDown indicates too few turns since the last compaction.
	ErrCoolingDown = errors.New("cooling down")

	// ErrEmptyChunk indicates the selected messages produced no text.
	ErrEmptyChunk = errors.New("chunk empty")

	// ErrTransport indicates a completion or similarity collaborator call failed.
	ErrTransport = errors.New("collaborator request failed")

	// ErrCapabilityUnavailable indicates an optional collaborator is absent.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrStorage indicates a persistence operation failed.
	ErrStorage = errors.New("storage operation failed")

	// ErrEntryNotFound indicates a cache entry does not exist.
	ErrEntryNotFound = errors.New("cache entry not found")

	// ErrInvalidConfig indicates settings were rejected.
	ErrInvalidConfig = errors.New("invalid pipeline configuration")
)

// PipelineError provides structured error context for pipeline operations.
type PipelineError struct {
	// Op is the operation that failed (e.g., "compact", "fill", "assemble")
	Op string

	// ConversationID is the conversation if applicable
	ConversationID string

	// Err is the underlying error
	Err error
}

// Error returns a formatted error message.
func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.ConversationID != "" {
		msg += fmt.Sprintf(" for conversation %s", e.ConversationID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

func newPipelineError(op, conversationID string, err error) *PipelineError {
	return &PipelineError{Op: op, ConversationID: conversationID, Err: err}
}
