package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used when no database is configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]Account
	byEmail map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	acc, err := newAccount(op, in)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[acc.Email]; taken {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}
	s.byID[acc.ID] = acc
	s.byEmail[acc.Email] = acc.ID
	return cloneAccount(acc), nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.GetByEmail"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return Account{}, notFound(op)
	}
	return cloneAccount(s.byID[id]), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.GetByID"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Account{}, notFound(op)
	}
	return cloneAccount(acc), nil
}

func (s *MemoryStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, "identity.UpdateLastLogin", id, func(a *Account) {
		t := at.UTC()
		a.LastLoginAt = &t
		a.UpdatedAt = t
	})
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	if hash == "" {
		return invalid("identity.UpdatePasswordHash", "password hash is required")
	}
	return s.update(ctx, "identity.UpdatePasswordHash", id, func(a *Account) {
		a.PasswordHash = hash
		a.UpdatedAt = at.UTC()
	})
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	const op = "identity.Delete"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return notFound(op)
	}
	delete(s.byID, id)
	delete(s.byEmail, acc.Email)
	return nil
}

func (s *MemoryStore) update(ctx context.Context, op, id string, fn func(*Account)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return notFound(op)
	}
	fn(&acc)
	s.byID[id] = acc
	return nil
}

// cloneAccount detaches pointer fields from the stored copy.
func cloneAccount(a Account) Account {
	if a.ProfilePicture != nil {
		p := *a.ProfilePicture
		a.ProfilePicture = &p
	}
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		a.LastLoginAt = &t
	}
	return a
}
