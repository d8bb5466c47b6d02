package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt work factor for new digests (2^12 rounds).
	DefaultCost = 12

	// MaxCost bounds configured costs to keep logins interactive.
	MaxCost = 16
)

// Argon2idParams are the bounds enforced when verifying legacy Argon2id digests.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Config is the single configuration surface for this package.
type Config struct {
	Cost int

	// LegacyLimits caps the Argon2id parameters accepted during Verify.
	LegacyLimits Argon2idParams
}

// DefaultConfig returns the production baseline.
func DefaultConfig() Config {
	return Config{
		Cost: DefaultCost,
		LegacyLimits: Argon2idParams{
			MemoryKiB:   128 * 1024,
			Iterations:  6,
			Parallelism: 8,
			SaltLength:  64,
			KeyLength:   128,
		},
	}
}

// Validate checks the configured cost against bcrypt's accepted range.
// bcrypt.MinCost is allowed so tests can hash quickly.
func (c Config) Validate() error {
	if c.Cost < bcrypt.MinCost || c.Cost > MaxCost {
		return fmt.Errorf("%w: %d not in [%d..%d]", ErrInvalidCost, c.Cost, bcrypt.MinCost, MaxCost)
	}
	return nil
}
