// ABOUTME: Token estimation used for context occupancy
// ABOUTME: Falls back to a character heuristic when no counter is configured
package core

import "context"

// ApproximateTokens estimates tokens as roughly four characters each
func ApproximateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// ApproxTokenCounter implements TokenCounter with ApproximateTokens
type ApproxTokenCounter struct{}

// CountTokens never fails
func (ApproxTokenCounter) CountTokens(_ context.Context, text string) (int, error) {
	return ApproximateTokens(text), nil
}

// Occupancy is tokens divided by capacity. Non-positive capacity yields zero.
func Occupancy(tokens, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(tokens) / float64(capacity)
}
