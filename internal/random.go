package internal

import (
	"crypto/rand"
	"encoding/base32"
	"io"
	"strings"
)

const (
	otpBytes          = 5
	recoveryCodeBytes = 10
	requestIDBytes    = 20
)

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateOTP returns a short human-enterable one-time code: 5 random bytes
// as 8 uppercase base32 characters. Distinct from opaque bearer tokens.
func GenerateOTP() (string, error) {
	raw := make([]byte, otpBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base32NoPad.EncodeToString(raw), nil
}

// GenerateRecoveryCode returns a 16-character uppercase base32 recovery code.
func GenerateRecoveryCode() (string, error) {
	raw := make([]byte, recoveryCodeBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base32NoPad.EncodeToString(raw), nil
}

// GenerateRequestID returns an opaque lowercase base32 identifier used for
// email verification requests referenced from cookies.
func GenerateRequestID() (string, error) {
	raw := make([]byte, requestIDBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return strings.ToLower(base32NoPad.EncodeToString(raw)), nil
}
