// ABOUTME: Tests for content hashing
// ABOUTME: Verifies stability, sensitivity, and empty-input handling
package util

import "testing"

func TestContentHash(t *testing.T) {
	a := ContentHash("The dragon sleeps under the mountain.")
	b := ContentHash("The dragon sleeps under the mountain.")
	c := ContentHash("The dragon sleeps under the mountain!")

	if a != b {
		t.Errorf("hash not stable: %q != %q", a, b)
	}
	if a == c {
		t.Error("different content should produce different hashes")
	}
	if len(a) != 64 {
		t.Errorf("len(hash) = %d, want 64", len(a))
	}
}

func TestContentHash_Empty(t *testing.T) {
	if got := ContentHash(""); got != "" {
		t.Errorf("ContentHash(\"\") = %q, want empty", got)
	}
}
