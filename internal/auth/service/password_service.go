package service

//go:generate mockgen -destination=../../mocks/mock_password_hasher.go -package=mocks github.com/AnthoniusHendriyanto/auth-session/internal/auth/service PasswordHasher

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	autherror "github.com/AnthoniusHendriyanto/auth-session/internal/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used for new digests.
const DefaultBcryptCost = 12

// bcrypt ignores everything past 72 bytes, so longer input is refused rather than truncated.
const maxBcryptPasswordBytes = 72

type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify never errors; malformed or unknown digests simply do not match.
	Verify(password, digest string) bool
}

// BcryptHasher produces bcrypt digests and verifies both bcrypt and legacy
// argon2id (PHC encoded) digests.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	switch {
	case cost == 0:
		cost = DefaultBcryptCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Cost() int {
	return h.cost
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if len(password) > maxBcryptPasswordBytes {
		return "", autherror.ErrPasswordTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

func (h *BcryptHasher) Verify(password, digest string) bool {
	switch {
	case isBcryptDigest(digest):
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
	case strings.HasPrefix(digest, "$argon2id$"):
		return verifyArgon2id(password, digest)
	default:
		return false
	}
}

func isBcryptDigest(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

// Upper bounds for argon2id parameters read from stored digests. A digest
// outside them is treated as malformed instead of being computed.
const (
	maxArgon2MemoryKiB = 256 * 1024
	maxArgon2Time      = 10
	maxArgon2Threads   = 16
)

// verifyArgon2id checks $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<hash>.
func verifyArgon2id(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return false
	}

	var mem, iter, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return false
	}
	if mem == 0 || iter == 0 || par == 0 ||
		mem > maxArgon2MemoryKiB || iter > maxArgon2Time || par > maxArgon2Threads {
		return false
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 || len(salt) > 64 {
		return false
	}
	expected, err := b64.DecodeString(parts[5])
	if err != nil || len(expected) < 16 || len(expected) > 128 {
		return false
	}

	key := argon2.IDKey([]byte(password), salt, iter, mem, uint8(par), uint32(len(expected))) // #nosec G115 -- bounded above
	return subtle.ConstantTimeCompare(key, expected) == 1
}
