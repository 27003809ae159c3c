// Package token provides cryptographically secure token generation.
//
// Tokens are random bytes read from crypto/rand and encoded with
// Base64 RawURL, so they are safe to paste into URLs, chat messages
// and email bodies without escaping.
//
// Entropy:
//
//   - DefaultLength (32 bytes) gives 256 bits
//   - MinLength (16 bytes) gives 128 bits, the floor for credentials
package token
