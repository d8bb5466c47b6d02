package authapi

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrConfig reports an unusable HTTP auth configuration.
var ErrConfig = errors.New("authapi: invalid config")

// Config controls HTTP-level auth behavior.
type Config struct {
	TrustProxy   bool  `env:"TETHER_AUTH_TRUST_PROXY" envDefault:"false"`
	MaxBodyBytes int64 `env:"TETHER_AUTH_MAX_BODY_BYTES" envDefault:"1048576"`

	// Login attempts allowed per client IP within LoginWindow.
	LoginLimit  int           `env:"TETHER_AUTH_LOGIN_LIMIT" envDefault:"10"`
	LoginWindow time.Duration `env:"TETHER_AUTH_LOGIN_WINDOW" envDefault:"15m"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes: 1 << 20,
		LoginLimit:   10,
		LoginWindow:  15 * time.Minute,
	}
}

// LoadConfigFromEnv parses the environment and clamps non-positive values to defaults.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrConfig, err)
	}

	def := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.LoginLimit <= 0 {
		cfg.LoginLimit = def.LoginLimit
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = def.LoginWindow
	}
	return cfg, nil
}
