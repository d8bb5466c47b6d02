package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]Session
	byDigest map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]Session),
		byDigest: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, accountID, digest string, expiresAt, now time.Time) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	row := Session{
		ID:          ulid.Make().String(),
		AccountID:   accountID,
		TokenDigest: digest,
		ExpiresAt:   expiresAt.UTC(),
		CreatedAt:   now.UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byDigest[digest]; taken {
		return Session{}, fmt.Errorf("session: create: duplicate token digest")
	}
	s.byID[row.ID] = row
	s.byDigest[digest] = row.ID
	return row, nil
}

func (s *MemoryStore) FindByDigest(ctx context.Context, digest string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byDigest[digest]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[id]
	if !ok {
		return ErrSessionNotFound
	}
	delete(s.byID, id)
	delete(s.byDigest, row.TokenDigest)
	return nil
}

func (s *MemoryStore) DeleteAllForAccount(ctx context.Context, accountID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, row := range s.byID {
		if row.AccountID != accountID {
			continue
		}
		delete(s.byID, id)
		delete(s.byDigest, row.TokenDigest)
		n++
	}
	return n, nil
}

// Len reports the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
