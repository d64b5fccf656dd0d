// ABOUTME: End-to-end tests running CLI commands against SQLite and a fake /v1 backend
// ABOUTME: Covers compaction, state, prompt assembly, table memory, and the summary cache

package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

const extractionReply = `{
  "version": "state.v1",
  "rolling_summary": ["The hero entered the cave.", "The hero found a map."],
  "anchors": [],
  "facts_state": {"inventory": ["map", "torch"], "status": {"hp": 10}, "quests": [{"name": "Find the dragon", "stage": "started", "next_step": "follow the map"}]},
  "open_loops": ["Who drew the map?"],
  "safety_constraints": [],
  "provenance": {"source": "test"}
}`

// completionServer answers every chat completion with reply and counts calls
func completionServer(t *testing.T, reply string) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		resp := openai.ChatCompletionResponse{
			ID:      fmt.Sprintf("c%d", calls.Load()),
			Object:  "chat.completion",
			Created: 1,
			Model:   "qwen3:8b",
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
				FinishReason: openai.FinishReasonStop,
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	resetGlobalFlags(t)
	t.Setenv("SIDEKICK_STORE", "sqlite")
	t.Setenv("SIDEKICK_DB_PATH", filepath.Join(t.TempDir(), "sidekick.db"))
	t.Setenv("SIDEKICK_PROVIDER", "openai")
	t.Setenv("SIDEKICK_COMPLETION_URL", srv.URL+"/v1")
	t.Setenv("SIDEKICK_DEBOUNCE", "0s")
	t.Setenv("SIDEKICK_SETTINGS", "")
	t.Setenv("SIDEKICK_TABLE_MEMORY_ENABLED", "")
	t.Setenv("SIDEKICK_VECTOR_ENABLED", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	return &calls
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func chatTranscript(n int) []map[string]any {
	msgs := make([]map[string]any, n)
	for i := range msgs {
		role := "assistant"
		if i%2 == 0 {
			role = "user"
		}
		msgs[i] = map[string]any{"role": role, "text": fmt.Sprintf("message %d about the cave and the map", i)}
	}
	return msgs
}

func TestCompactCmd_ForceThenState(t *testing.T) {
	calls := completionServer(t, extractionReply)
	path := writeFile(t, "chat.json", chatTranscript(20))

	out, err := runCLI(t, "compact", path, "--conversation", "demo", "--force")
	if err != nil {
		t.Fatalf("compact error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Sidekick: summary/state updated.") {
		t.Errorf("compact output = %q", out)
	}
	if calls.Load() != 1 {
		t.Errorf("completion calls = %d, want 1", calls.Load())
	}

	out, err = runCLI(t, "state", "demo")
	if err != nil {
		t.Fatalf("state error = %v", err)
	}
	for _, want := range []string{"[Pipeline Memory v1]", "- The hero found a map.", "Inventory: map, torch"} {
		if !strings.Contains(out, want) {
			t.Errorf("state output missing %q:\n%s", want, out)
		}
	}
}

func TestCompactCmd_NoopBelowThreshold(t *testing.T) {
	calls := completionServer(t, extractionReply)
	path := writeFile(t, "chat.json", chatTranscript(20))

	out, err := runCLI(t, "compact", path, "--capacity", "1000000")
	if err != nil {
		t.Fatalf("compact error = %v", err)
	}
	if !strings.Contains(out, "Sidekick: noop") {
		t.Errorf("compact output = %q, want noop status", out)
	}
	if calls.Load() != 0 {
		t.Errorf("completion calls = %d, want 0", calls.Load())
	}
}

func TestCompactCmd_IneligibleRun(t *testing.T) {
	completionServer(t, extractionReply)
	path := writeFile(t, "chat.json", chatTranscript(20))

	out, err := runCLI(t, "compact", path, "--run-type", "swipe", "--force")
	if err != nil {
		t.Fatalf("compact error = %v", err)
	}
	if !strings.Contains(out, "Sidekick: skipped for swipe run.") {
		t.Errorf("compact output = %q", out)
	}
}

func TestCompactCmd_InvalidCapacity(t *testing.T) {
	completionServer(t, extractionReply)
	path := writeFile(t, "chat.json", chatTranscript(4))

	if _, err := runCLI(t, "compact", path, "--capacity", "0"); err == nil {
		t.Error("expected error for zero capacity")
	}
}

func TestStateCmd_NoState(t *testing.T) {
	completionServer(t, extractionReply)

	out, err := runCLI(t, "state", "fresh")
	if err != nil {
		t.Fatalf("state error = %v", err)
	}
	if !strings.Contains(out, "(no state yet)") {
		t.Errorf("state output = %q", out)
	}
}

func TestAssembleCmd_InjectsMemoryAndTrimsHistory(t *testing.T) {
	completionServer(t, extractionReply)

	transcript := chatTranscript(20)
	messages := []map[string]string{
		{"role": "system", "content": "You are the narrator.\nAlways update the inventory numbers each turn."},
	}
	for _, m := range transcript {
		messages = append(messages, map[string]string{"role": m["role"].(string), "content": m["text"].(string)})
	}
	path := writeFile(t, "turn.json", map[string]any{
		"conversation_id": "demo",
		"capacity":        200,
		"transcript":      transcript,
		"messages":        messages,
	})

	out, err := runCLI(t, "--format", "json", "assemble", path)
	if err != nil {
		t.Fatalf("assemble error = %v\n%s", err, out)
	}

	var result struct {
		Compaction      string            `json:"compaction"`
		Skipped         string            `json:"skipped"`
		Messages        []json.RawMessage `json:"messages"`
		Slots           map[string]string `json:"slots"`
		RemovedLines    int               `json:"removed_lines"`
		RemovedMessages int               `json:"removed_messages"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if result.Compaction != "Sidekick: summary/state updated." {
		t.Errorf("compaction = %q", result.Compaction)
	}
	if result.Skipped != "" {
		t.Errorf("skipped = %q", result.Skipped)
	}
	if !strings.Contains(result.Slots["memory"], "[Pipeline Memory v1]") {
		t.Errorf("memory slot = %q", result.Slots["memory"])
	}
	if result.RemovedLines != 1 {
		t.Errorf("removed lines = %d, want 1", result.RemovedLines)
	}
	if result.RemovedMessages == 0 || len(result.Messages) >= len(messages) {
		t.Errorf("history not trimmed: removed %d, %d messages left", result.RemovedMessages, len(result.Messages))
	}
}

func TestAssembleCmd_TableMemory(t *testing.T) {
	completionServer(t, extractionReply)
	t.Setenv("SIDEKICK_TABLE_MEMORY_ENABLED", "true")

	if out, err := runCLI(t, "table", "add", "characters", "mira", "Mira fears deep water"); err != nil {
		t.Fatalf("table add error = %v\n%s", err, out)
	}
	if out, err := runCLI(t, "table", "add", "places", "market", "The market sells bread"); err != nil {
		t.Fatalf("table add error = %v\n%s", err, out)
	}

	out, err := runCLI(t, "table", "list")
	if err != nil {
		t.Fatalf("table list error = %v", err)
	}
	if !strings.Contains(out, "mira") || !strings.Contains(out, "market") {
		t.Errorf("table list output = %q", out)
	}

	path := writeFile(t, "turn.json", map[string]any{
		"conversation_id": "tables",
		"capacity":        100000,
		"transcript":      []map[string]any{{"role": "user", "text": "Can Mira cross the deep water?"}},
		"messages":        []map[string]string{{"role": "user", "content": "Can Mira cross the deep water?"}},
	})
	out, err = runCLI(t, "--format", "json", "assemble", path)
	if err != nil {
		t.Fatalf("assemble error = %v\n%s", err, out)
	}

	var result struct {
		TableRows int               `json:"table_rows"`
		Slots     map[string]string `json:"slots"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if result.TableRows != 1 {
		t.Errorf("table rows = %d, want 1", result.TableRows)
	}
	if !strings.Contains(result.Slots["table_memory"], "Mira fears deep water") {
		t.Errorf("table slot = %q", result.Slots["table_memory"])
	}

	if _, err := runCLI(t, "table", "remove", "characters", "mira"); err != nil {
		t.Fatalf("table remove error = %v", err)
	}
	out, _ = runCLI(t, "table", "list")
	if strings.Contains(out, "mira") {
		t.Errorf("row still listed after remove: %q", out)
	}
}

func TestCacheCmds_FillEditClear(t *testing.T) {
	calls := completionServer(t, `{"level1":"A longer paragraph. With details.","level2":"A short line."}`)
	items := writeFile(t, "items.json", []map[string]any{
		{"uid": "lore:dragon", "content": "The dragon sleeps under the mountain."},
		{"uid": "lore:pass", "content": "The northern pass closes in winter."},
	})

	out, err := runCLI(t, "cache", "fill", items)
	if err != nil {
		t.Fatalf("cache fill error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Sidekick: cache filled") {
		t.Errorf("fill output = %q", out)
	}
	if calls.Load() != 2 {
		t.Errorf("completion calls = %d, want 2", calls.Load())
	}

	// Unchanged content is served from the persisted cache
	if _, err := runCLI(t, "cache", "fill", items); err != nil {
		t.Fatalf("second fill error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("completion calls after refill = %d, want 2", calls.Load())
	}

	out, err = runCLI(t, "cache", "list")
	if err != nil {
		t.Fatalf("cache list error = %v", err)
	}
	if !strings.Contains(out, "lore:dragon") || !strings.Contains(out, "lore:pass") {
		t.Errorf("cache list output = %q", out)
	}

	if _, err := runCLI(t, "cache", "edit", "lore:dragon", "--level1", "An edited line."); err != nil {
		t.Fatalf("cache edit error = %v", err)
	}
	if _, err := runCLI(t, "cache", "edit", "lore:missing", "--level1", "x"); err == nil {
		t.Error("expected error editing a missing entry")
	}

	out, err = runCLI(t, "cache", "clear", "--keep-edited")
	if err != nil {
		t.Fatalf("cache clear error = %v", err)
	}
	if !strings.Contains(out, "Removed 1 entries") {
		t.Errorf("clear output = %q", out)
	}

	out, _ = runCLI(t, "--format", "json", "cache", "list")
	if !strings.Contains(out, "An edited line.") || strings.Contains(out, "lore:pass") {
		t.Errorf("cache after clear = %q", out)
	}

	if _, err := runCLI(t, "cache", "delete", "lore:dragon"); err != nil {
		t.Fatalf("cache delete error = %v", err)
	}
	if _, err := runCLI(t, "cache", "delete", "lore:dragon"); err == nil {
		t.Error("expected error deleting a missing entry")
	}
}

func TestSettingsCmds(t *testing.T) {
	completionServer(t, extractionReply)

	out, err := runCLI(t, "settings", "show")
	if err != nil {
		t.Fatalf("settings show error = %v", err)
	}
	if !strings.Contains(out, "preserve_last_messages: 8") {
		t.Errorf("settings show output = %q", out)
	}

	path := filepath.Join(t.TempDir(), "sidekick.yaml")
	if err := os.WriteFile(path, []byte("preserve_last_messages: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "settings", "set", path); err != nil {
		t.Fatalf("settings set error = %v", err)
	}

	out, _ = runCLI(t, "settings", "show")
	if !strings.Contains(out, "preserve_last_messages: 4") {
		t.Errorf("persisted settings not applied: %q", out)
	}

	if _, err := runCLI(t, "settings", "reset"); err != nil {
		t.Fatalf("settings reset error = %v", err)
	}
	out, _ = runCLI(t, "settings", "show")
	if !strings.Contains(out, "preserve_last_messages: 8") {
		t.Errorf("settings not reset: %q", out)
	}
}

func TestContextCmds_RequireEmbeddings(t *testing.T) {
	completionServer(t, extractionReply)

	if _, err := runCLI(t, "context", "add", "some passage"); err == nil {
		t.Error("expected error without an embedding key")
	}
	if _, err := runCLI(t, "context", "collections"); err == nil {
		t.Error("expected error without an embedding key")
	}
}
