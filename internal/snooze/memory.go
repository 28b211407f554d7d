package snooze

import (
	"context"
	"sync"
	"time"

	"github.com/p-blackswan/pr-nudge/internal/nudge"
)

// MemoryStore is an in-memory snooze store. Set replaces a single map
// entry under the lock, so concurrent button clicks can only race on
// ordering — last write wins, state never corrupts.
type MemoryStore struct {
	mu     sync.RWMutex
	ledger nudge.Ledger
}

// NewMemoryStore creates a new in-memory snooze store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ledger: make(nudge.Ledger),
	}
}

func (m *MemoryStore) Snapshot(_ context.Context) (nudge.Ledger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.Clone(), nil
}

func (m *MemoryStore) PruneExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, expiry := range m.ledger {
		if !expiry.After(now) {
			delete(m.ledger, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Set(_ context.Context, id nudge.Identity, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger[id] = expiry
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id nudge.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ledger, id)
	return nil
}
