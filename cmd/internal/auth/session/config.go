package session

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinSecretBytes is the minimum length of the access-token signing secret.
const MinSecretBytes = 32

// Config defines runtime configuration for token issuance.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string `env:"TETHER_AUTH_ISSUER" envDefault:"tether"`

	// AccessSecret signs access tokens (HS256).
	AccessSecret string `env:"TETHER_JWT_ACCESS_SECRET"`

	// Duration strings in the "<n><s|m|h|d>" grammar, see ParseDuration.
	AccessExpiration  string `env:"TETHER_JWT_ACCESS_EXPIRATION" envDefault:"15m"`
	RefreshExpiration string `env:"TETHER_JWT_REFRESH_EXPIRATION" envDefault:"30d"`

	// ClockSkew is tolerated when validating exp/iat.
	ClockSkew time.Duration `env:"TETHER_AUTH_CLOCK_SKEW" envDefault:"30s"`

	// Resolved by Validate.
	AccessTTL  time.Duration `env:"-"`
	RefreshTTL time.Duration `env:"-"`
}

// DefaultConfig returns the documented defaults without a secret.
func DefaultConfig() Config {
	return Config{
		Issuer:            "tether",
		AccessExpiration:  DefaultAccessExpiration,
		RefreshExpiration: DefaultRefreshExpiration,
		ClockSkew:         30 * time.Second,
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        30 * 24 * time.Hour,
	}
}

// LoadConfigFromEnv loads and validates session configuration.
//
// Required:
//   - TETHER_JWT_ACCESS_SECRET (at least 32 bytes)
//
// Optional:
//   - TETHER_AUTH_ISSUER
//   - TETHER_JWT_ACCESS_EXPIRATION, TETHER_JWT_REFRESH_EXPIRATION
//   - TETHER_AUTH_CLOCK_SKEW (Go duration)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate resolves the TTLs and checks every invariant.
func (c *Config) Validate() error {
	if len(c.AccessSecret) < MinSecretBytes {
		return ErrConfig
	}
	if c.Issuer == "" || c.ClockSkew < 0 {
		return ErrConfig
	}

	c.AccessTTL = ParseDuration(c.AccessExpiration, 15*time.Minute)
	c.RefreshTTL = ParseDuration(c.RefreshExpiration, 30*24*time.Hour)
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return ErrConfig
	}
	return nil
}
