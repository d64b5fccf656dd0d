// ABOUTME: Cancellable waits and exponential backoff for retries and pacing
// ABOUTME: Used by the completion clients between attempts and by cache fills between items
package util

import (
	"context"
	"math/rand/v2"
	"time"
)

// maxBackoff caps a single retry wait
const maxBackoff = 30 * time.Second

// CalculateBackoff returns base * 2^attempt, capped, with jitter of up to 25% either way
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2)) - backoff/4
	return backoff + jitter
}

// Sleep waits for d or until ctx ends, returning ctx.Err() in the latter case.
// A non-positive d only reports whether ctx is already done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WaitBackoff sleeps for the backoff of the given retry attempt
func WaitBackoff(ctx context.Context, baseDelay time.Duration, attempt int) error {
	return Sleep(ctx, CalculateBackoff(baseDelay, attempt))
}
