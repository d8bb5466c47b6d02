package revocation

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is the number of writes between full sweeps of expired entries.
const sweepEvery = 256

// MemoryRegistry is a process-local Registry. Entries expire lazily on lookup
// and are swept every sweepEvery writes.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
	writes  int
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry returns an empty registry. A nil clock uses time.Now.
func NewMemoryRegistry(now func() time.Time) *MemoryRegistry {
	if now == nil {
		now = time.Now
	}
	return &MemoryRegistry{entries: make(map[string]time.Time), now: now}
}

func (m *MemoryRegistry) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.writes++
	if m.writes%sweepEvery == 0 {
		m.sweep(now)
	}
	m.entries[tokenID] = now.Add(ttl)
	return nil
}

func (m *MemoryRegistry) sweep(now time.Time) {
	for id, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, id)
		}
	}
}

func (m *MemoryRegistry) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !exp.After(m.now()) {
		delete(m.entries, tokenID)
		return false, nil
	}
	return true, nil
}

// Len reports the number of stored entries, expired ones included.
func (m *MemoryRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
