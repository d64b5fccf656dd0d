// ABOUTME: Tests for MCP tool handlers
// ABOUTME: Drives each tool through a pipeline with a canned completion backend
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/harper/sidekick-pipeline/internal/config"
	"github.com/harper/sidekick-pipeline/internal/core"
	"github.com/harper/sidekick-pipeline/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

const stateJSON = `{"version":"state.v1","rolling_summary":["They met at the inn."],"anchors":[],"facts_state":{"inventory":["lantern"]},"open_loops":[],"safety_constraints":[],"provenance":{}}`

type cannedCompleter struct {
	response string
}

func (c cannedCompleter) Complete(context.Context, models.CompletionRequest) (string, error) {
	return c.response, nil
}

func newTestHandlers(t *testing.T, response string) *Handlers {
	t.Helper()
	p, err := core.New(core.Options{
		Settings:  config.Defaults(),
		Completer: cannedCompleter{response: response},
	})
	if err != nil {
		t.Fatalf("core.New() error = %v", err)
	}
	h := NewHandlers(p)
	t.Cleanup(h.Shutdown)
	return h
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("tool returned error: %+v", result.Content)
	}
	text := result.Content[0].(mcp.TextContent).Text
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, text)
	}
	return out
}

func transcriptArg(n int) []any {
	msgs := make([]any, n)
	for i := range msgs {
		msgs[i] = map[string]any{
			"text":    fmt.Sprintf("line %d of the story", i),
			"is_user": i%2 == 0,
		}
	}
	return msgs
}

func TestCompactTranscript(t *testing.T) {
	h := newTestHandlers(t, stateJSON)
	result, err := h.CompactTranscript(context.Background(), callRequest(map[string]any{
		"conversation_id": "c1",
		"transcript":      transcriptArg(20),
		"capacity":        float64(100),
	}))
	if err != nil {
		t.Fatalf("CompactTranscript() error = %v", err)
	}

	out := resultJSON(t, result)
	if out["fired"] != true || out["status"] != "Sidekick: summary/state updated." {
		t.Errorf("result = %v", out)
	}
	if !strings.Contains(out["digest"].(string), "Inventory: lantern") {
		t.Errorf("digest = %v", out["digest"])
	}
}

func TestCompactTranscript_Force(t *testing.T) {
	h := newTestHandlers(t, stateJSON)
	args := map[string]any{
		"conversation_id": "c1",
		"transcript":      transcriptArg(20),
		"capacity":        float64(1000000),
	}

	result, _ := h.CompactTranscript(context.Background(), callRequest(args))
	if out := resultJSON(t, result); out["fired"] != false {
		t.Errorf("unforced result = %v", out)
	}

	args["force"] = true
	result, _ = h.CompactTranscript(context.Background(), callRequest(args))
	if out := resultJSON(t, result); out["fired"] != true {
		t.Errorf("forced result = %v", out)
	}
}

func TestCompactTranscript_BadArguments(t *testing.T) {
	h := newTestHandlers(t, stateJSON)
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing conversation", map[string]any{"transcript": transcriptArg(2)}},
		{"missing transcript", map[string]any{"conversation_id": "c1"}},
		{"wrong transcript type", map[string]any{"conversation_id": "c1", "transcript": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.CompactTranscript(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatalf("CompactTranscript() error = %v", err)
			}
			if !result.IsError {
				t.Error("expected tool error result")
			}
		})
	}
}

func TestAssemblePrompt_AfterCompaction(t *testing.T) {
	h := newTestHandlers(t, stateJSON)
	ctx := context.Background()
	transcript := transcriptArg(20)
	if _, err := h.CompactTranscript(ctx, callRequest(map[string]any{
		"conversation_id": "c1",
		"transcript":      transcript,
		"capacity":        float64(100),
	})); err != nil {
		t.Fatalf("CompactTranscript() error = %v", err)
	}

	messages := []any{map[string]any{"role": "system", "content": "You must track inventory now.\nBe vivid."}}
	for i, m := range transcript {
		role := "assistant"
		if i%2 == 0 {
			role = "user"
		}
		messages = append(messages, map[string]any{"role": role, "content": m.(map[string]any)["text"]})
	}

	result, err := h.AssemblePrompt(ctx, callRequest(map[string]any{"conversation_id": "c1", "messages": messages}))
	if err != nil {
		t.Fatalf("AssemblePrompt() error = %v", err)
	}
	out := resultJSON(t, result)
	if out["removed_lines"] != float64(1) || out["removed_messages"] != float64(12) {
		t.Errorf("result = %v", out)
	}
	slots, _ := out["slots"].(map[string]any)
	if _, ok := slots[core.SlotMemory]; !ok {
		t.Errorf("slots = %v, want memory slot", slots)
	}
}

func TestAssemblePrompt_NoRun(t *testing.T) {
	h := newTestHandlers(t, stateJSON)
	result, _ := h.AssemblePrompt(context.Background(), callRequest(map[string]any{
		"conversation_id": "unknown",
		"messages":        []any{map[string]any{"role": "user", "content": "hi"}},
	}))
	if out := resultJSON(t, result); out["skipped"] != "no eligible run" {
		t.Errorf("result = %v", out)
	}
}

func TestShowState(t *testing.T) {
	h := newTestHandlers(t, stateJSON)
	ctx := context.Background()

	result, _ := h.ShowState(ctx, callRequest(map[string]any{"conversation_id": "c1"}))
	if out := resultJSON(t, result); out["message"] != "(no state yet)" {
		t.Errorf("empty result = %v", out)
	}

	_, _ = h.CompactTranscript(ctx, callRequest(map[string]any{
		"conversation_id": "c1",
		"transcript":      transcriptArg(20),
		"force":           true,
	}))
	result, _ = h.ShowState(ctx, callRequest(map[string]any{"conversation_id": "c1"}))
	out := resultJSON(t, result)
	if out["last_compacted_turn"] != float64(20) || out["state"] == nil {
		t.Errorf("result = %v", out)
	}
}

func TestFillCacheAndStats(t *testing.T) {
	h := newTestHandlers(t, `{"level1":"one","level2":"two"}`)
	ctx := context.Background()
	cfg := h.pipeline.Settings()
	cfg.Cache.PacingMillis = 0
	if err := h.pipeline.UpdateSettings(ctx, cfg); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	items := []any{
		map[string]any{"uid": "lore:1", "content": "The old mill burned."},
		map[string]any{"uid": "lore:2", "content": "The river floods in spring."},
	}
	result, _ := h.FillCache(ctx, callRequest(map[string]any{"items": items}))
	if out := resultJSON(t, result); out["updated"] != float64(2) {
		t.Errorf("fill result = %v", out)
	}

	result, _ = h.FillCache(ctx, callRequest(map[string]any{"items": items}))
	if out := resultJSON(t, result); out["hits"] != float64(2) {
		t.Errorf("second fill result = %v", out)
	}

	result, _ = h.CacheStats(ctx, callRequest(map[string]any{}))
	out := resultJSON(t, result)
	if out["entries"] != float64(2) || out["hits"] != float64(2) {
		t.Errorf("stats = %v", out)
	}

	result, _ = h.FillCache(ctx, callRequest(map[string]any{"items": []any{map[string]any{"content": "x"}}}))
	if !result.IsError {
		t.Error("item without uid accepted")
	}
}

func TestMessageReceived(t *testing.T) {
	h := newTestHandlers(t, `{"level1":"The mill burned down. Nobody was hurt.","level2":"The mill burned."}`)
	ctx := context.Background()
	args := map[string]any{
		"conversation_id": "c1",
		"message":         map[string]any{"index": 3, "text": "The old mill burned.", "role": "assistant"},
	}

	result, _ := h.MessageReceived(ctx, callRequest(args))
	if out := resultJSON(t, result); out["cached"] != false || out["status"] != "" {
		t.Errorf("result while disabled = %v", out)
	}

	cfg := h.pipeline.Settings()
	cfg.MicroSummaries = true
	if err := h.pipeline.UpdateSettings(ctx, cfg); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	result, _ = h.MessageReceived(ctx, callRequest(args))
	out := resultJSON(t, result)
	if out["cached"] != true || out["uid"] != core.MessageUID("c1", 3) {
		t.Errorf("result = %v", out)
	}
	if e := h.pipeline.Cache().Lookup(core.MessageUID("c1", 3), "The old mill burned."); e == nil || e.Level2 != "The mill burned." {
		t.Errorf("cached entry = %+v", e)
	}

	result, _ = h.MessageReceived(ctx, callRequest(map[string]any{"conversation_id": "c1"}))
	if !result.IsError {
		t.Error("missing message accepted")
	}
}
