package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
// Schema identifiers are validated and quoted.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema holding the accounts table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const pgAccountColumns = `id, email, password_hash, first_name, last_name, role, profile_picture,
	push_notifications_enabled, reminders_enabled, language, timezone,
	created_at, updated_at, last_login_at`

func (s *PostgresStore) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.Create"

	acc, err := newAccount(op, in)
	if err != nil {
		return Account{}, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (`+pgAccountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		acc.ID, acc.Email, acc.PasswordHash, acc.FirstName, acc.LastName, acc.Role, acc.ProfilePicture,
		acc.PushNotificationsEnabled, acc.RemindersEnabled, acc.Language, acc.Timezone,
		acc.CreatedAt, acc.UpdatedAt, acc.LastLoginAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	return s.getOne(ctx, "identity.GetByEmail",
		`SELECT `+pgAccountColumns+` FROM `+s.table()+` WHERE email = $1`,
		NormalizeEmail(email),
	)
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Account, error) {
	return s.getOne(ctx, "identity.GetByID",
		`SELECT `+pgAccountColumns+` FROM `+s.table()+` WHERE id = $1`,
		strings.TrimSpace(id),
	)
}

func (s *PostgresStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, "identity.UpdateLastLogin",
		`UPDATE `+s.table()+` SET last_login_at = $1, updated_at = $1 WHERE id = $2`,
		at.UTC(), id,
	)
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	const op = "identity.UpdatePasswordHash"
	if hash == "" {
		return invalid(op, "password hash is required")
	}
	return s.execOne(ctx, op,
		`UPDATE `+s.table()+` SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		hash, at.UTC(), id,
	)
}

// Delete removes the account; refresh sessions go with it (ON DELETE CASCADE).
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	return s.execOne(ctx, "identity.Delete",
		`DELETE FROM `+s.table()+` WHERE id = $1`,
		id,
	)
}

func (s *PostgresStore) getOne(ctx context.Context, op, query string, arg any) (Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &a.Role, &a.ProfilePicture,
		&a.PushNotificationsEnabled, &a.RemindersEnabled, &a.Language, &a.Timezone,
		&a.CreatedAt, &a.UpdatedAt, &a.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, notFound(op)
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.LastLoginAt != nil {
		t := a.LastLoginAt.UTC()
		a.LastLoginAt = &t
	}
	return a, nil
}

func (s *PostgresStore) execOne(ctx context.Context, op, query string, args ...any) error {
	ct, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return notFound(op)
	}
	return nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "accounts"}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_accounts_email", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
