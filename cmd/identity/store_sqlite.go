package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store over database/sql with the modernc SQLite driver.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore wraps an open database whose schema has been migrated.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil sql db")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteAccountColumns = `id, email, password_hash, first_name, last_name, role, profile_picture,
	push_notifications_enabled, reminders_enabled, language, timezone,
	created_at, updated_at, last_login_at`

func (s *SQLiteStore) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.Create"

	acc, err := newAccount(op, in)
	if err != nil {
		return Account{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+sqliteAccountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.Email, acc.PasswordHash, acc.FirstName, acc.LastName, acc.Role, acc.ProfilePicture,
		acc.PushNotificationsEnabled, acc.RemindersEnabled, acc.Language, acc.Timezone,
		toMillis(acc.CreatedAt), toMillis(acc.UpdatedAt), nil,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return Account{}, ConflictError{Op: op, Field: "email"}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	return s.getOne(ctx, "identity.GetByEmail",
		`SELECT `+sqliteAccountColumns+` FROM accounts WHERE email = ?`,
		NormalizeEmail(email),
	)
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (Account, error) {
	return s.getOne(ctx, "identity.GetByID",
		`SELECT `+sqliteAccountColumns+` FROM accounts WHERE id = ?`,
		strings.TrimSpace(id),
	)
}

func (s *SQLiteStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	ms := toMillis(at)
	return s.execOne(ctx, "identity.UpdateLastLogin",
		`UPDATE accounts SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		ms, ms, id,
	)
}

func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	const op = "identity.UpdatePasswordHash"
	if hash == "" {
		return invalid(op, "password hash is required")
	}
	return s.execOne(ctx, op,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, toMillis(at), id,
	)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	return s.execOne(ctx, "identity.Delete", `DELETE FROM accounts WHERE id = ?`, id)
}

func (s *SQLiteStore) getOne(ctx context.Context, op, query string, arg any) (Account, error) {
	var (
		a                Account
		picture          sql.NullString
		created, updated int64
		lastLogin        sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &a.Role, &picture,
		&a.PushNotificationsEnabled, &a.RemindersEnabled, &a.Language, &a.Timezone,
		&created, &updated, &lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, notFound(op)
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	if picture.Valid {
		p := picture.String
		a.ProfilePicture = &p
	}
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	if lastLogin.Valid {
		t := fromMillis(lastLogin.Int64)
		a.LastLoginAt = &t
	}
	return a, nil
}

func (s *SQLiteStore) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return notFound(op)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
