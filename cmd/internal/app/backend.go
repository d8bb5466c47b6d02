package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"tether/cmd/identity"
	"tether/cmd/internal/auth/audit"
	"tether/cmd/internal/auth/lifecycle"
	"tether/cmd/internal/auth/revocation"
	"tether/cmd/internal/auth/session"
	"tether/cmd/internal/storage"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// backend holds the persistence adapters selected by Config.
type backend struct {
	kind string

	accounts identity.Store
	sessions session.Store
	registry revocation.Registry
	sink     lifecycle.Sink

	pool   *pgxpool.Pool
	sqlite *sql.DB
	redis  *redis.Client
}

var _ Store = (*backend)(nil)

// newBackend picks Postgres, then SQLite, then memory for accounts and
// sessions, and Redis or memory for revocations. Schemas are migrated before
// any adapter is built.
func newBackend(ctx context.Context, cfg Config, log Logger) (_ *backend, err error) {
	b := &backend{}
	defer func() {
		if err != nil {
			_ = b.Close(context.Background())
		}
	}()

	switch {
	case cfg.DatabaseURL != "":
		b.kind = "postgres"
		if b.pool, err = NewDBPool(ctx, cfg); err != nil {
			return nil, err
		}
		if err = storage.MigratePostgres(ctx, b.pool); err != nil {
			return nil, err
		}
		if b.accounts, err = identity.NewPostgresStore(b.pool); err != nil {
			return nil, err
		}
		b.sessions = session.NewPostgresStore(b.pool)
		b.sink = audit.NewPostgresSink(b.pool)

	case cfg.SQLitePath != "":
		b.kind = "sqlite"
		if b.sqlite, err = storage.OpenSQLite(ctx, cfg.SQLitePath); err != nil {
			return nil, err
		}
		if err = storage.MigrateSQLite(ctx, b.sqlite); err != nil {
			return nil, err
		}
		if b.accounts, err = identity.NewSQLiteStore(b.sqlite); err != nil {
			return nil, err
		}
		b.sessions = session.NewSQLiteStore(b.sqlite)
		b.sink = audit.NewLogSink(log)

	default:
		b.kind = "memory"
		b.accounts = identity.NewMemoryStore()
		b.sessions = session.NewMemoryStore()
		b.sink = audit.NewLogSink(log)
	}

	if cfg.RedisURL != "" {
		if b.redis, err = NewRedisClient(ctx, cfg.RedisURL); err != nil {
			return nil, err
		}
		b.registry = revocation.NewRedisRegistry(b.redis)
	} else {
		b.registry = revocation.NewMemoryRegistry(time.Now)
	}

	log.Info("store.selected", "backend", b.kind, "revocation", b.registryKind())
	return b, nil
}

func (b *backend) registryKind() string {
	if b.redis != nil {
		return "redis"
	}
	return "memory"
}

func (b *backend) sqlEnabled() bool {
	return b.pool != nil || b.sqlite != nil
}

// ping checks every external dependency. It reports the first failing one.
func (b *backend) ping(ctx context.Context) (string, error) {
	if b.pool != nil {
		if err := PingDB(ctx, b.pool, 2*time.Second); err != nil {
			return "database", err
		}
	}
	if b.sqlite != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := b.sqlite.PingContext(pctx)
		cancel()
		if err != nil {
			return "database", err
		}
	}
	if r, ok := b.registry.(*revocation.RedisRegistry); ok {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := r.Ping(pctx)
		cancel()
		if err != nil {
			return "redis", err
		}
	}
	return "", nil
}

func (b *backend) Close(_ context.Context) error {
	var errs []error
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.sqlite != nil {
		errs = append(errs, b.sqlite.Close())
	}
	if b.pool != nil {
		b.pool.Close()
	}
	return errors.Join(errs...)
}
