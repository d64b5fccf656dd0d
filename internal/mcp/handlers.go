// ABOUTME: MCP tool handler implementations for the sidekick server
// ABOUTME: Decodes tool arguments, calls the pipeline, and returns JSON results
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harper/sidekick-pipeline/internal/core"
	"github.com/harper/sidekick-pipeline/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	pipeline *core.Pipeline
}

// NewHandlers creates handlers bound to a pipeline
func NewHandlers(pipeline *core.Pipeline) *Handlers {
	return &Handlers{pipeline: pipeline}
}

// CompactTranscript handles the compact_transcript tool
func (h *Handlers) CompactTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}

	var transcript []models.Message
	if err := decodeArgument(request, "transcript", &transcript); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("transcript argument is invalid: %v", err)), nil
	}
	for i := range transcript {
		transcript[i].Index = i
	}

	req := core.CompactRequest{
		ConversationID: conversationID,
		Transcript:     transcript,
		Capacity:       request.GetInt("capacity", 0),
		RunType:        models.ParseRunType(request.GetString("run_type", "")),
	}

	var out core.CompactOutcome
	if request.GetBool("force", false) {
		out = h.pipeline.ForceCompact(ctx, req)
	} else {
		out = h.pipeline.OnGenerationRequested(ctx, req)
	}

	response := map[string]interface{}{
		"fired":  out.Fired,
		"status": out.Status,
	}
	if out.State != nil {
		response["issues"] = out.State.Issues
		response["digest"] = out.State.Digest
		response["last_compacted_turn"] = out.State.LastCompactedTurn
	}
	return jsonResult(response)
}

// AssemblePrompt handles the assemble_prompt tool
func (h *Handlers) AssemblePrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}

	prompt := &models.Prompt{}
	if err := decodeArgument(request, "messages", &prompt.Messages); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("messages argument is invalid: %v", err)), nil
	}

	report := h.pipeline.OnPromptFinalized(ctx, core.AssembleRequest{
		ConversationID: conversationID,
		Prompt:         prompt,
		DryRun:         request.GetBool("dry_run", false),
	})

	response := map[string]interface{}{
		"messages":         prompt.Messages,
		"slots":            prompt.Slots,
		"removed_lines":    report.RemovedLines,
		"removed_messages": report.RemovedMessages,
		"table_rows":       report.TableRows,
		"vector_hits":      report.VectorHits,
	}
	if report.Skipped != "" {
		response["skipped"] = report.Skipped
	}
	return jsonResult(response)
}

// ShowState handles the show_state tool
func (h *Handlers) ShowState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}

	st, err := h.pipeline.State(ctx, conversationID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load state: %v", err)), nil
	}
	if st == nil {
		return jsonResult(map[string]interface{}{"state": nil, "message": "(no state yet)"})
	}

	return jsonResult(map[string]interface{}{
		"state":               st.State,
		"digest":              st.Digest,
		"issues":              st.Issues,
		"last_compacted_turn": st.LastCompactedTurn,
		"last_occupancy":      st.LastOccupancy,
		"updated_at":          st.UpdatedAt.Format(time.RFC3339),
	})
}

// CacheStats handles the cache_stats tool
func (h *Handlers) CacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := h.pipeline.CacheStats()
	response := map[string]interface{}{
		"hits":    stats.Hits,
		"misses":  stats.Misses,
		"entries": stats.Entries,
	}
	if !stats.LastUpdate.IsZero() {
		response["last_update"] = stats.LastUpdate.Format(time.RFC3339)
	}
	return jsonResult(response)
}

// FillCache handles the fill_cache tool
func (h *Handlers) FillCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var items []models.CacheItem
	if err := decodeArgument(request, "items", &items); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("items argument is invalid: %v", err)), nil
	}
	for i, item := range items {
		if item.UID == "" {
			return mcp.NewToolResultError(fmt.Sprintf("items[%d] is missing uid", i)), nil
		}
	}

	report := h.pipeline.FillCache(ctx, items)
	return jsonResult(map[string]interface{}{
		"status":    report.Status,
		"total":     report.Total,
		"processed": report.Processed,
		"hits":      report.Hits,
		"misses":    report.Misses,
		"updated":   report.Updated,
		"failed":    report.Failed,
		"cancelled": report.Cancelled,
	})
}

// MessageReceived handles the message_received tool
func (h *Handlers) MessageReceived(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}

	var msg models.Message
	if err := decodeArgument(request, "message", &msg); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("message argument is invalid: %v", err)), nil
	}

	status := h.pipeline.OnMessageReceived(ctx, conversationID, msg)
	uid := core.MessageUID(conversationID, msg.Index)
	return jsonResult(map[string]interface{}{
		"uid":    uid,
		"status": status,
		"cached": h.pipeline.Cache().Lookup(uid, msg.Text) != nil,
	})
}

// Shutdown writes pending pipeline documents
func (h *Handlers) Shutdown() {
	_ = h.pipeline.Close()
}

// decodeArgument re-encodes a structured argument into out
func decodeArgument(request mcp.CallToolRequest, key string, out interface{}) error {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return fmt.Errorf("arguments must be an object")
	}
	raw, exists := args[key]
	if !exists {
		return fmt.Errorf("%s is required", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func jsonResult(response map[string]interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
