package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is what the store keeps instead of the raw refresh token.
func Fingerprint(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}
