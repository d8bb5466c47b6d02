package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store using PostgreSQL (refresh_sessions).
// The pool is owned by the caller.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a new session row with a ULID id.
func (s *PostgresStore) Create(ctx context.Context, accountID, digest string, expiresAt, now time.Time) (Session, error) {
	row := Session{
		ID:          ulid.Make().String(),
		AccountID:   accountID,
		TokenDigest: digest,
		ExpiresAt:   expiresAt.UTC().Truncate(time.Microsecond),
		CreatedAt:   now.UTC().Truncate(time.Microsecond),
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_sessions (id, account_id, token_digest, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, row.ID, row.AccountID, row.TokenDigest, row.ExpiresAt, row.CreatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("session: create: %w", err)
	}
	return row, nil
}

// FindByDigest loads a session by token digest.
func (s *PostgresStore) FindByDigest(ctx context.Context, digest string) (Session, error) {
	var row Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, account_id, token_digest, expires_at, created_at
		  FROM refresh_sessions
		 WHERE token_digest = $1
	`, digest).Scan(&row.ID, &row.AccountID, &row.TokenDigest, &row.ExpiresAt, &row.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("session: find: %w", err)
	}
	row.ExpiresAt = row.ExpiresAt.UTC()
	row.CreatedAt = row.CreatedAt.UTC()
	return row, nil
}

// Delete removes the session; a zero row count means another caller won.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM refresh_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteAllForAccount removes every session for the account.
func (s *PostgresStore) DeleteAllForAccount(ctx context.Context, accountID string) (int64, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM refresh_sessions WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("session: delete all: %w", err)
	}
	return ct.RowsAffected(), nil
}
