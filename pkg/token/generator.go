package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	// DefaultLength is the default token length in bytes.
	DefaultLength = 32

	// MinLength is the smallest accepted length in bytes (128 bits).
	MinLength = 16
)

// Generate generates a cryptographically secure random token of DefaultLength bytes.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength generates a token with the specified byte length.
//
// The returned token is Base64 RawURL encoded for safe URL transmission.
func GenerateWithLength(length int) (string, error) {
	if length < MinLength {
		return "", fmt.Errorf("token: length %d below minimum %d", length, MinLength)
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// EncodedLength returns the encoded length of a token of n random bytes.
func EncodedLength(n int) int {
	return base64.RawURLEncoding.EncodedLen(n)
}
