package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"io"
	"strings"
)

// tokenBytes is the bearer token entropy. 20 bytes encodes to a 32-character
// base32 string, comfortably above brute-force reach and cookie-safe.
const tokenBytes = 20

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateToken returns a fresh bearer token: 20 cryptographically random
// bytes encoded as lowercase base32 without padding.
func GenerateToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return strings.ToLower(tokenEncoding.EncodeToString(raw)), nil
}

// HashToken derives the stored session ID from a bearer token:
// lowercase hex of SHA-256(token).
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
