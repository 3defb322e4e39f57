package in_memory

import (
	"context"
	"sort"
	"sync"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
)

// StateStore is the in-process fallback backend. It keeps deep copies so
// callers never share memory with the stored snapshot.
type StateStore struct {
	mu    sync.Mutex
	store map[string]*domain.AuctionState
}

var _ port.StateStore = (*StateStore)(nil)

func NewStateStore() *StateStore {
	return &StateStore{store: make(map[string]*domain.AuctionState)}
}

func (c *StateStore) SetState(ctx context.Context, auctionID string, state *domain.AuctionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[auctionID] = state.DeepCopy()
	return nil
}

func (c *StateStore) GetState(ctx context.Context, auctionID string) (*domain.AuctionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.store[auctionID]
	if !ok {
		return nil, nil
	}
	return s.DeepCopy(), nil
}

func (c *StateStore) DeleteState(ctx context.Context, auctionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, auctionID)
	return nil
}

func (c *StateStore) ListAll(ctx context.Context) ([]*domain.AuctionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]*domain.AuctionState, 0, len(c.store))
	for _, s := range c.store {
		res = append(res, s.DeepCopy())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].AuctionID < res[j].AuctionID })
	return res, nil
}
