package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.LogFormat != "json" || cfg.BcryptCost != 12 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ReadHeaderTimeout != 5*time.Second || cfg.DBMaxConns != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DatabaseURL != "" || cfg.SQLitePath != "" || cfg.RedisURL != "" {
		t.Fatalf("storage should default to memory: %+v", cfg)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TETHER_LOG_FORMAT", " TEXT ")
	t.Setenv("TETHER_SQLITE_PATH", "/tmp/tether.db")
	t.Setenv("TETHER_CORS_ALLOWED_ORIGINS", "https://a.example.com, http://127.0.0.1:*")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogFormat != "text" || cfg.SQLitePath != "/tmp/tether.db" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "http://127.0.0.1:*" {
		t.Fatalf("origins = %#v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TETHER_HTTP_ADDR=127.0.0.1:9999\nTETHER_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// Real environment wins over .env.
	t.Setenv("TETHER_LOG_LEVEL", "warn")
	// Cleanup for the variable godotenv sets.
	t.Setenv("TETHER_HTTP_ADDR", "")
	os.Unsetenv("TETHER_HTTP_ADDR")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadConfig_MissingExplicitEnvFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TETHER_ENV_FILE", "does-not-exist.env")

	if _, err := LoadConfig(); !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TETHER_HTTP_READ_TIMEOUT", "fast")

	if _, err := LoadConfig(); !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}
