package identity

import (
	"context"
	"time"
)

// Account defaults applied on creation.
const (
	DefaultRole     = "user"
	DefaultLanguage = "en"
	DefaultTimezone = "UTC"
)

// Account is the persisted credential holder.
// PasswordHash never leaves the service; use ToView for outbound representations.
type Account struct {
	ID           string
	Email        string
	PasswordHash string

	FirstName      string
	LastName       string
	Role           string
	ProfilePicture *string

	PushNotificationsEnabled bool
	RemindersEnabled         bool
	Language                 string
	Timezone                 string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// CreateAccountInput describes a new account. Email is normalized by the store.
type CreateAccountInput struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Now          time.Time
}

// Store is the account persistence boundary.
//
// Create returns ConflictError{Field: "email"} when the normalized email is taken.
// Lookups and updates of a missing account return NotFoundError.
type Store interface {
	Create(ctx context.Context, in CreateAccountInput) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// newAccount validates in and builds the row every adapter inserts.
func newAccount(op string, in CreateAccountInput) (Account, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return Account{}, invalid(op, "email is required")
	}
	if in.PasswordHash == "" {
		return Account{}, invalid(op, "password hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	// Millisecond precision round-trips through every adapter.
	now = now.UTC().Truncate(time.Millisecond)

	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	return Account{
		ID:                       id,
		Email:                    email,
		PasswordHash:             in.PasswordHash,
		FirstName:                in.FirstName,
		LastName:                 in.LastName,
		Role:                     DefaultRole,
		PushNotificationsEnabled: true,
		RemindersEnabled:         true,
		Language:                 DefaultLanguage,
		Timezone:                 DefaultTimezone,
		CreatedAt:                now,
		UpdatedAt:                now,
	}, nil
}
