// ABOUTME: Stable short fingerprints of bearer tokens for log correlation
// ABOUTME: Tokens themselves are never logged

package auth

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns the first 8 bytes of the token's BLAKE2b-256 hash as hex.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
