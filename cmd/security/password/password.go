package password

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt reads at most 72 bytes of input.
const maxBcryptInput = 72

// Hasher hashes and verifies account passwords.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// BcryptHasher is the default Hasher.
type BcryptHasher struct {
	cfg Config
}

var _ Hasher = (*BcryptHasher)(nil)

// NewHasher validates cfg and returns a BcryptHasher.
func NewHasher(cfg Config) (*BcryptHasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BcryptHasher{cfg: cfg}, nil
}

// Hash returns a salted bcrypt digest of plaintext.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword(bcryptInput(plaintext), h.cfg.Cost)
	if err != nil {
		return "", fmt.Errorf("password: hash: %w", err)
	}
	return string(b), nil
}

// Verify reports whether plaintext matches digest.
// Malformed or unsupported digests yield false.
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		ok, err := verifyArgon2id(digest, plaintext, h.cfg.LegacyLimits)
		return err == nil && ok
	case strings.HasPrefix(digest, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(digest), bcryptInput(plaintext)) == nil
	default:
		return false
	}
}

// NeedsRehash reports whether digest was produced with another scheme or cost.
func (h *BcryptHasher) NeedsRehash(digest string) bool {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return true
	}
	return cost != h.cfg.Cost
}

// bcryptInput passes short passwords through and pre-hashes longer ones so
// every byte of a long password still counts.
func bcryptInput(plaintext string) []byte {
	if len(plaintext) <= maxBcryptInput {
		return []byte(plaintext)
	}
	sum := sha256.Sum256([]byte(plaintext))
	return []byte(base64.RawStdEncoding.EncodeToString(sum[:]))
}
