// ABOUTME: Tests for the Anthropic completion client
// ABOUTME: Serves canned Messages API responses from httptest
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/harper/sidekick-pipeline/internal/models"
)

func TestAnthropicClient_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s, want /v1/messages", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest","content":[{"type":"text","text":"{\"version\":"},{"type":"text","text":"\"state.v1\"}"}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient("test-key", "", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	text, err := client.Complete(context.Background(), models.CompletionRequest{
		System:      "extract state",
		User:        "chunk",
		Temperature: 0.2,
		MaxTokens:   500,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != `{"version":"state.v1"}` {
		t.Errorf("Complete() = %q", text)
	}

	if body["model"] != DefaultAnthropicModel {
		t.Errorf("model = %v, want %s", body["model"], DefaultAnthropicModel)
	}
	if body["max_tokens"] != float64(500) {
		t.Errorf("max_tokens = %v, want 500", body["max_tokens"])
	}
}

func TestAnthropicClient_CompleteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient("bad-key", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	_, err := client.Complete(context.Background(), models.CompletionRequest{User: "chunk"})
	var ce *CompletionError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *CompletionError", err)
	}
	if ce.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", ce.StatusCode)
	}
	if ce.Retryable() {
		t.Error("401 should not be retryable")
	}
}

func TestAnthropicClient_CountTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages/count_tokens" {
			t.Errorf("path = %s, want /v1/messages/count_tokens", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"input_tokens":42}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient("test-key", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	n, err := client.CountTokens(context.Background(), "some transcript text")
	if err != nil {
		t.Fatalf("CountTokens() error = %v", err)
	}
	if n != 42 {
		t.Errorf("CountTokens() = %d, want 42", n)
	}
}
