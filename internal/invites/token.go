package invites

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// TokenPrefix marks portal invitation tokens
	TokenPrefix = "inv_"

	// TokenBytes is the number of random bytes in a token (256 bits,
	// so collisions are negligible; the store's unique constraint
	// backstops them anyway)
	TokenBytes = 32
)

// GenerateToken creates a new invitation token with the format
// inv_<base64url>. Returns the plaintext token (delivered once, by
// email) and its SHA-256 hash (the only form ever persisted).
func GenerateToken() (token string, hash []byte, err error) {
	randomBytes := make([]byte, TokenBytes)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	token = TokenPrefix + encoded
	hash = HashToken(token)

	return token, hash, nil
}

// HashToken computes the SHA-256 hash of a token for storage and lookup
func HashToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// ValidateTokenFormat checks if a token has the correct shape before
// any database lookup
func ValidateTokenFormat(token string) bool {
	if len(token) < len(TokenPrefix) {
		return false
	}

	if token[:len(TokenPrefix)] != TokenPrefix {
		return false
	}

	encoded := token[len(TokenPrefix):]
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}

	return len(decoded) == TokenBytes
}
