package session

import (
	"context"
	"time"
)

// Session is a persisted refresh session. The raw token is never stored.
type Session struct {
	ID          string
	AccountID   string
	TokenDigest string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Expired reports whether the session is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Store abstracts persistence for refresh sessions.
type Store interface {
	// Create inserts a session for accountID keyed by digest.
	Create(ctx context.Context, accountID, digest string, expiresAt, now time.Time) (Session, error)

	// FindByDigest returns ErrSessionNotFound when no session matches.
	FindByDigest(ctx context.Context, digest string) (Session, error)

	// Delete removes one session atomically. When nothing was removed it
	// returns ErrSessionNotFound; at most one concurrent caller succeeds.
	Delete(ctx context.Context, id string) error

	// DeleteAllForAccount removes every session of the account and reports how many.
	DeleteAllForAccount(ctx context.Context, accountID string) (int64, error)
}
