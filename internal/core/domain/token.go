// Package domain defines the core domain models for memgate.
package domain

import "github.com/yndnr/memgate-go/pkg/token"

// Token constants.
const (
	// TokenPrefix marks invitation tokens so the logger can mask them by value.
	TokenPrefix = "mgv_"

	// TokenBytesLength is the number of random bytes per token (256 bits).
	TokenBytesLength = 32

	// TokenBodyLength is the Base64 RawURL encoded length (32 bytes -> 43 chars).
	TokenBodyLength = 43

	// TokenLength is the total token length (prefix + body).
	TokenLength = len(TokenPrefix) + TokenBodyLength
)

// GenerateToken generates a fresh invitation token.
//
// The plaintext is emailed exactly once and then lives only in the store;
// never log it unmasked.
func GenerateToken() (string, error) {
	body, err := token.GenerateWithLength(TokenBytesLength)
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return TokenPrefix + body, nil
}
