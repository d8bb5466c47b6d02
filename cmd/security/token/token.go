package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// RawTokenBytes is the entropy of a refresh token before encoding.
	RawTokenBytes = 32

	// MinHMACKeyBytes is the smallest accepted digest key.
	MinHMACKeyBytes = 32
)

// Generator creates refresh tokens, digests and token ids.
// The zero value digests with plain SHA-256.
type Generator struct {
	key   []byte
	bytes int
}

// NewGenerator returns a Generator. A blank key selects SHA-256 digests;
// a non-blank key must be at least MinHMACKeyBytes long.
func NewGenerator(key string) (Generator, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Generator{bytes: RawTokenBytes}, nil
	}
	if len(key) < MinHMACKeyBytes {
		return Generator{}, ErrHMACKeyTooShort
	}
	return Generator{key: []byte(key), bytes: RawTokenBytes}, nil
}

// HMACEnabled reports whether digests are keyed.
func (g Generator) HMACEnabled() bool { return len(g.key) > 0 }

// NewRawToken returns a hex-encoded random refresh token (64 chars by default).
func (g Generator) NewRawToken() (string, error) {
	n := g.bytes
	if n <= 0 {
		n = RawTokenBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Digest returns the deterministic storage key for a raw token.
func (g Generator) Digest(raw string) string {
	if len(g.key) == 0 {
		return HashSHA256Hex(raw)
	}
	return HashHMACSHA256Hex(raw, g.key)
}

// NewTokenID returns a random UUID used as an access token's jti.
func (g Generator) NewTokenID() string {
	return uuid.NewString()
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}
