// ABOUTME: Error type for failed completion and embedding requests
// ABOUTME: Carries the HTTP status and a bounded excerpt of the response body
package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// maxBodyExcerpt bounds the response text kept on an error
const maxBodyExcerpt = 300

// ErrNoChoices is returned when a backend answers without any content
var ErrNoChoices = errors.New("no completion choices returned")

// CompletionError reports a non-success response from a completion backend.
// StatusCode is zero for network failures.
type CompletionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *CompletionError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("completion request failed: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("completion request failed: HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("completion request failed: HTTP %d %s", e.StatusCode, e.Body)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later attempt could succeed
func (e *CompletionError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func newCompletionError(status int, body string, err error) *CompletionError {
	runes := []rune(body)
	if len(runes) > maxBodyExcerpt {
		body = string(runes[:maxBodyExcerpt]) + "..."
	}
	return &CompletionError{StatusCode: status, Body: body, Err: err}
}

// isRetryable classifies any error returned by a backend call
func isRetryable(err error) bool {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Retryable()
	}
	return !errors.Is(err, ErrNoChoices)
}
