package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// FingerprintRefreshToken returns the SHA-256 hex digest stored in place of a
// raw refresh token. It is unkeyed: it only keeps usable tokens out of storage.
func FingerprintRefreshToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

func fingerprintsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
