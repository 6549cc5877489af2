package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize collapses whitespace runs to single spaces and trims both ends.
// Deterministic and locale-independent.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Fingerprint returns the hex-encoded sha256 of the normalized text. Two
// calls on whitespace-equivalent content always produce the same hash.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
