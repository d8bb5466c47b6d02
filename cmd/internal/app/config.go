package app

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrConfig reports an unusable runtime configuration.
var ErrConfig = errors.New("app: invalid config")

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"TETHER_HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"TETHER_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TETHER_LOG_FORMAT" envDefault:"json"`

	ReadHeaderTimeout time.Duration `env:"TETHER_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"TETHER_HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"TETHER_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"TETHER_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"TETHER_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxHeaderBytes    int           `env:"TETHER_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// Storage selection: DatabaseURL wins over SQLitePath; neither means in-memory.
	DatabaseURL string `env:"TETHER_DATABASE_URL"`
	DBMaxConns  int32  `env:"TETHER_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"TETHER_DB_MIN_CONNS" envDefault:"0"`
	SQLitePath  string `env:"TETHER_SQLITE_PATH"`

	// Empty RedisURL keeps revocations in process memory.
	RedisURL string `env:"TETHER_REDIS_URL"`

	// If true, /readyz returns 503 unless a SQL database is configured and reachable.
	ReadinessRequireDB bool `env:"TETHER_READINESS_REQUIRE_DB" envDefault:"false"`

	// If true, TETHER_TOKEN_HMAC_KEY must be set and refresh-token digests are keyed.
	RequireTokenHMAC bool   `env:"TETHER_REQUIRE_TOKEN_HMAC" envDefault:"false"`
	TokenHMACKey     string `env:"TETHER_TOKEN_HMAC_KEY"`

	BcryptCost   int `env:"TETHER_BCRYPT_COST" envDefault:"12"`
	NotifyBuffer int `env:"TETHER_NOTIFY_BUFFER" envDefault:"256"`

	CORSAllowedOrigins   []string `env:"TETHER_CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"TETHER_CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	CORSMaxAgeSeconds    int      `env:"TETHER_CORS_MAX_AGE_SECONDS" envDefault:"600"`
}

// LoadConfig loads Config from the environment. A .env file in the working
// directory (or the file named by TETHER_ENV_FILE) is applied first without
// overriding variables that are already set.
func LoadConfig() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, errors.Join(ErrConfig, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrConfig, err)
	}

	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	for i, o := range cfg.CORSAllowedOrigins {
		cfg.CORSAllowedOrigins[i] = strings.TrimSpace(o)
	}
	return cfg, nil
}

func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv("TETHER_ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}
