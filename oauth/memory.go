package oauth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps token rows in process memory for deployments without
// Postgres. Rows are lost on restart and re-seeded from the environment.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]memoryRow
}

type memoryRow struct {
	access, refresh, scope string
	expiry                 time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]memoryRow)}
}

func (m *MemoryStore) GetOAuthToken(_ context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := m.rows[provider]
	return r.access, r.refresh, r.expiry, r.scope, nil
}

func (m *MemoryStore) UpsertOAuthToken(_ context.Context, provider, access, refresh string, expiry time.Time, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[provider] = memoryRow{access: access, refresh: refresh, scope: scope, expiry: expiry}
	return nil
}
