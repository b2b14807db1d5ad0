package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// NewRefreshToken generates a fresh opaque refresh token: 32 random bytes,
// hex-encoded. The plaintext is delivered to the client once; only its hash
// is ever stored.
func NewRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashRefreshToken returns the hex-encoded SHA-256 hash of a refresh token.
// Sessions store and compare this hash, never the raw token.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshTokenHashEqual compares the presented token's hash to the stored
// hash in constant time. Returns true only on an exact match.
func RefreshTokenHashEqual(presentedToken, storedHash string) bool {
	presentedHash := HashRefreshToken(presentedToken)
	return subtle.ConstantTimeCompare([]byte(presentedHash), []byte(storedHash)) == 1
}
