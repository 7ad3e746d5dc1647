package bids

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	bids map[string]*Bid
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bids: make(map[string]*Bid)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(_ context.Context, b *Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// One active bid per (request, seller), matching the partial unique
	// index in Postgres.
	for _, existing := range m.bids {
		if existing.RequestID == b.RequestID &&
			existing.SellerID == b.SellerID &&
			existing.Status.Active() {
			return ErrDuplicateBid
		}
	}

	cp := *b
	m.bids[b.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bids[id]
	if !ok {
		return nil, ErrBidNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, b *Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bids[b.ID]; !ok {
		return ErrBidNotFound
	}
	cp := *b
	m.bids[b.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByRequest(_ context.Context, requestID string) ([]*Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Bid
	for _, b := range m.bids {
		if b.RequestID == requestID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) ListBySeller(_ context.Context, sellerID string) ([]*Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Bid
	for _, b := range m.bids {
		if b.SellerID == sellerID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
