package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// SQLiteStore implements Store over database/sql (modernc SQLite).
// Timestamps are unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore wraps a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Create(ctx context.Context, accountID, digest string, expiresAt, now time.Time) (Session, error) {
	row := Session{
		ID:          ulid.Make().String(),
		AccountID:   accountID,
		TokenDigest: digest,
		ExpiresAt:   fromMillis(toMillis(expiresAt)),
		CreatedAt:   fromMillis(toMillis(now)),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (id, account_id, token_digest, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, row.ID, row.AccountID, row.TokenDigest, toMillis(row.ExpiresAt), toMillis(row.CreatedAt))
	if err != nil {
		return Session{}, fmt.Errorf("session: create: %w", err)
	}
	return row, nil
}

func (s *SQLiteStore) FindByDigest(ctx context.Context, digest string) (Session, error) {
	var (
		row              Session
		expires, created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, token_digest, expires_at, created_at
		  FROM refresh_sessions
		 WHERE token_digest = ?
	`, digest).Scan(&row.ID, &row.AccountID, &row.TokenDigest, &expires, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("session: find: %w", err)
	}
	row.ExpiresAt = fromMillis(expires)
	row.CreatedAt = fromMillis(created)
	return row, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session: delete rows affected: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteAllForAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE account_id = ?`, accountID)
	if err != nil {
		return 0, fmt.Errorf("session: delete all: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("session: delete all rows affected: %w", err)
	}
	return n, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
