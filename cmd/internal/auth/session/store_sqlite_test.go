package session

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/oklog/ulid/v2"

	"tether/cmd/internal/storage/storagetest"
)

func insertSQLiteAccount(t *testing.T, db *sql.DB) string {
	t.Helper()

	id := ulid.Make().String()
	now := time.Now().UnixMilli()
	_, err := db.Exec(
		`INSERT INTO accounts (id, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, id+"@example.com", "digest", now, now,
	)
	if err != nil {
		t.Fatalf("insert account: %v", err)
	}
	return id
}

func TestSQLiteStore_Contract(t *testing.T) {
	t.Parallel()
	runStoreContract(t, func(t *testing.T) (Store, func(t *testing.T) string) {
		db := storagetest.SQLite(t)
		return NewSQLiteStore(db), func(t *testing.T) string { return insertSQLiteAccount(t, db) }
	})
}

func TestSQLiteStore_CascadeOnAccountDelete(t *testing.T) {
	t.Parallel()

	db := storagetest.SQLite(t)
	s := NewSQLiteStore(db)
	ctx := context.Background()
	acc := insertSQLiteAccount(t, db)
	now := time.Now()

	if _, err := s.Create(ctx, acc, digestOf("cascade"), now.Add(time.Hour), now); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, acc); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if _, err := s.FindByDigest(ctx, digestOf("cascade")); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected cascade delete, got %v", err)
	}
}

func TestSQLiteStore_CreateRequiresAccount(t *testing.T) {
	t.Parallel()

	s := NewSQLiteStore(storagetest.SQLite(t))
	now := time.Now()
	if _, err := s.Create(context.Background(), "missing-account", digestOf("x"), now.Add(time.Hour), now); err == nil {
		t.Fatalf("expected foreign key failure")
	}
}

func TestSQLiteStore_Delete_ZeroRowsIsNotFound(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM refresh_sessions WHERE id = ?`)).
		WithArgs("s-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewSQLiteStore(db).Delete(context.Background(), "s-1")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLiteStore_Delete_DriverErrorIsWrapped(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	boom := errors.New("disk I/O error")
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM refresh_sessions WHERE id = ?`)).
		WithArgs("s-1").
		WillReturnError(boom)

	err = NewSQLiteStore(db).Delete(context.Background(), "s-1")
	if !errors.Is(err, boom) || errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestSQLiteStore_FindByDigest_NoRows(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT id, account_id, token_digest, expires_at, created_at`).
		WithArgs("d").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "token_digest", "expires_at", "created_at"}))

	if _, err := NewSQLiteStore(db).FindByDigest(context.Background(), "d"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
