// ABOUTME: Decides when to compact a transcript and runs the extraction
// ABOUTME: Gated by run type, surplus history, occupancy, and cooldown
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harper/sidekick-pipeline/internal/config"
	"github.com/harper/sidekick-pipeline/internal/models"
	"github.com/harper/sidekick-pipeline/internal/util"
)

// extractionSystemPrompt instructs the model to return the state document
var extractionSystemPrompt = strings.Join([]string{
	"You are a summarization + state extraction assistant for an ongoing roleplay/story chat.",
	"Return VALID JSON ONLY (no markdown).",
	"Rules:",
	"- Do not invent facts. If uncertain, omit.",
	"- Keep rolling_summary compact, chronological, and concrete.",
	"- facts_state should contain inventory/status/quests/relationships/locations/flags if present.",
	"- open_loops are unresolved promises/questions.",
	"Output schema (keys required): version, rolling_summary, anchors, facts_state, open_loops, safety_constraints, provenance.",
	`Set version = "state.v1".`,
	"anchors may be empty for MVP; if present, quotes must be verbatim from the input chunk.",
}, "\n")

// neverCompacted keeps the cooldown gate open for conversations without state
const neverCompacted = -9999

// CompactRequest is one generation-requested event
type CompactRequest struct {
	ConversationID string
	Transcript     []models.Message
	Capacity       int
	RunType        models.RunType
	Force          bool
}

// CompactOutcome reports what the trigger did
type CompactOutcome struct {
	Fired  bool
	Status string
	State  *models.CompactionState
	Err    error
}

// Compactor runs the trigger path
type Compactor struct {
	completer Completer
	counter   TokenCounter
	meta      *MetadataStore
	sessions  *Sessions
	logger    Logger
}

// NewCompactor creates a Compactor. A nil counter uses ApproxTokenCounter.
func NewCompactor(completer Completer, counter TokenCounter, meta *MetadataStore, sessions *Sessions, logger Logger) *Compactor {
	if counter == nil {
		counter = ApproxTokenCounter{}
	}
	return &Compactor{
		completer: completer,
		counter:   counter,
		meta:      meta,
		sessions:  sessions,
		logger:    orNoop(logger),
	}
}

// MaybeCompact evaluates the gates and, when they pass, writes a fresh compaction state
func (c *Compactor) MaybeCompact(ctx context.Context, req CompactRequest, cfg config.Settings) CompactOutcome {
	if !cfg.Enabled {
		return CompactOutcome{Status: "Sidekick: disabled.", Err: ErrDisabled}
	}
	if !req.RunType.Eligible() {
		return CompactOutcome{Status: fmt.Sprintf("Sidekick: skipped for %s run.", req.RunType), Err: ErrIneligibleRun}
	}

	lastHash := ""
	if n := len(req.Transcript); n > 0 {
		lastHash = util.ContentHash(req.Transcript[n-1].Text)
	}
	c.sessions.Record(req.ConversationID, RunRecord{
		RunType:         req.RunType,
		Capacity:        req.Capacity,
		TranscriptLen:   len(req.Transcript),
		LastMessageHash: lastHash,
	})

	sel := SelectChunks(req.Transcript, cfg.PreserveLastMessages)
	if !sel.CanSummarize() {
		return CompactOutcome{Status: "Sidekick: not enough history to summarize.", Err: ErrNotEnoughHistory}
	}

	text := nonSystemText(req.Transcript)
	tokens, err := c.counter.CountTokens(ctx, text)
	if err != nil {
		c.logger.Warn("token counting failed, using approximation", "conversation", req.ConversationID, "error", err)
		tokens = ApproximateTokens(text)
	}
	occupancy := Occupancy(tokens, req.Capacity)

	prior, err := c.meta.Load(ctx, req.ConversationID)
	if err != nil {
		return CompactOutcome{
			Status: fmt.Sprintf("Sidekick: could not load state: %v", err),
			Err:    newPipelineError("compact", req.ConversationID, err),
		}
	}
	lastCompacted := neverCompacted
	if prior != nil {
		lastCompacted = prior.LastCompactedTurn
	}
	turnsSince := len(req.Transcript) - lastCompacted

	threshold := cfg.Thresholds.StartOccupancy
	cooldown := cfg.Thresholds.MinTurnsBetween

	if !req.Force {
		if occupancy < threshold {
			return CompactOutcome{
				Status: fmt.Sprintf("Sidekick: noop (occupancy %.1f%%, tokens ~%d/%d).", occupancy*100, tokens, req.Capacity),
				Err:    ErrBelowThreshold,
			}
		}
		if turnsSince < cooldown {
			return CompactOutcome{
				Status: fmt.Sprintf("Sidekick: cooling down (%d/%d turns since last summarize).", turnsSince, cooldown),
				Err:    ErrCoolingDown,
			}
		}
	}

	chunk := BuildChunkText(req.Transcript, sel)
	if strings.TrimSpace(chunk) == "" {
		return CompactOutcome{Status: "Sidekick: chunk empty, skipping.", Err: ErrEmptyChunk}
	}

	if c.completer == nil {
		return CompactOutcome{Status: "Sidekick: no completion backend configured.", Err: ErrCapabilityUnavailable}
	}

	c.logger.Info("summarizing",
		"conversation", req.ConversationID,
		"messages", len(sel.Summarize),
		"occupancy", fmt.Sprintf("%.1f%%", occupancy*100),
		"forced", req.Force,
	)

	raw, err := c.completer.Complete(ctx, models.CompletionRequest{
		System:      extractionSystemPrompt,
		User:        "Chat chunk to summarize (each line has an index):\n\n" + chunk,
		Model:       cfg.Completion.Model,
		Endpoint:    cfg.Completion.URL,
		Temperature: cfg.Completion.Temperature,
		MaxTokens:   cfg.Completion.MaxTokens,
	})
	if err != nil {
		c.logger.Error("summarize request failed", "conversation", req.ConversationID, "error", err)
		return CompactOutcome{
			Status: fmt.Sprintf("Sidekick: summarize failed: %v", err),
			Err:    newPipelineError("compact", req.ConversationID, errors.Join(ErrTransport, err)),
		}
	}

	state, issues := ParseExtraction(raw)
	record := &models.CompactionState{
		Version:           models.MetadataVersion,
		RunID:             uuid.New().String(),
		LastCompactedTurn: len(req.Transcript),
		LastTokenCount:    tokens,
		LastContextSize:   req.Capacity,
		LastOccupancy:     occupancy,
		PreserveCount:     sel.PreserveCount,
		LastMessageHash:   lastHash,
		State:             state,
		Digest:            RenderState(state),
		Issues:            issues,
		UpdatedAt:         time.Now().UTC(),
	}

	if err := c.meta.Save(ctx, req.ConversationID, record); err != nil {
		return CompactOutcome{
			Status: fmt.Sprintf("Sidekick: failed to store state: %v", err),
			Err:    newPipelineError("compact", req.ConversationID, errors.Join(ErrStorage, err)),
		}
	}

	if len(issues) > 0 {
		c.logger.Warn("summary has issues", "conversation", req.ConversationID, "issues", issues)
		return CompactOutcome{
			Fired:  true,
			Status: "Sidekick: summarized with issues: " + strings.Join(issues, "; "),
			State:  record,
		}
	}
	return CompactOutcome{Fired: true, Status: "Sidekick: summary/state updated.", State: record}
}
