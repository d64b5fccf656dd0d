// ABOUTME: Content fingerprinting for cache validation and branch guards
// ABOUTME: BLAKE3-256 hex digests of message and item text
package util

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ContentHash returns the hex BLAKE3-256 digest of s.
// Empty input hashes to the empty string so callers can treat it as absent.
func ContentHash(s string) string {
	if s == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
