// Package secret generates API key secrets and derives their storage
// fingerprints.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the number of random bytes in a generated secret. Hex encoding
// doubles it, so secrets are 64 characters long.
const Size = 32

// Generate returns a new random secret read from the system CSPRNG.
func Generate() (string, error) {
	b := make([]byte, Size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Fingerprint returns the hex-encoded SHA-256 digest of secret. It is the
// only form of a secret that is ever persisted.
func Fingerprint(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}
