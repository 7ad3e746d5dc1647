package escrow

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*Transaction
	byRequest map[string]string // request ID -> escrow ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*Transaction),
		byRequest: make(map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(_ context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// One escrow per request, matching the unique constraint in Postgres.
	if _, exists := m.byRequest[t.RequestID]; exists {
		return ErrEscrowExists
	}

	cp := *t
	m.byID[t.ID] = &cp
	m.byRequest[t.RequestID] = t.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.byID[id]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetByRequest(_ context.Context, requestID string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byRequest[requestID]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[t.ID]; !ok {
		return ErrEscrowNotFound
	}
	cp := *t
	m.byID[t.ID] = &cp
	return nil
}

func (m *MemoryStore) ListExpiredPending(_ context.Context, before time.Time, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Transaction
	for _, t := range m.byID {
		if t.Status != StatusPending || !t.ExpiresAt.Before(before) {
			continue
		}
		cp := *t
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
