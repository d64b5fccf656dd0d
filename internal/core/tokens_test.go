// ABOUTME: Tests for token approximation and occupancy
package core

import (
	"context"
	"strings"
	"testing"
)

func TestOccupancy(t *testing.T) {
	tests := []struct {
		name     string
		tokens   int
		capacity int
		want     float64
	}{
		{"full", 1000, 1000, 1.0},
		{"half", 500, 1000, 0.5},
		{"zero capacity", 123456, 0, 0},
		{"negative capacity", 10, -5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Occupancy(tt.tokens, tt.capacity); got != tt.want {
				t.Errorf("Occupancy(%d, %d) = %v, want %v", tt.tokens, tt.capacity, got, tt.want)
			}
		})
	}
}

func TestApproximateTokens(t *testing.T) {
	if got := ApproximateTokens(""); got != 0 {
		t.Errorf("ApproximateTokens(\"\") = %d, want 0", got)
	}
	if got := ApproximateTokens("abcd"); got != 1 {
		t.Errorf("ApproximateTokens(abcd) = %d, want 1", got)
	}
	if got := ApproximateTokens("abcde"); got != 2 {
		t.Errorf("ApproximateTokens(abcde) = %d, want 2", got)
	}

	n, err := ApproxTokenCounter{}.CountTokens(context.Background(), strings.Repeat("x", 400))
	if err != nil || n != 100 {
		t.Errorf("CountTokens() = %d, %v; want 100, nil", n, err)
	}
}
