package in_memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
)

// MemoryRepo is a Ledger kept in process memory, for tests and local runs.
type MemoryRepo struct {
	mu          sync.Mutex
	livestreams map[string]*domain.Livestream
	items       map[string]*domain.AuctionItem
	bids        map[string][]*domain.Bid
	orders      map[string]*domain.Order
	stats       map[string]UserStats
}

// UserStats is the seller aggregate kept per user.
type UserStats struct {
	Sales      int
	TotalSales decimal.Decimal
}

var _ port.Ledger = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		livestreams: make(map[string]*domain.Livestream),
		items:       make(map[string]*domain.AuctionItem),
		bids:        make(map[string][]*domain.Bid),
		orders:      make(map[string]*domain.Order),
		stats:       make(map[string]UserStats),
	}
}

func itemKey(livestreamID, itemID string) string { return livestreamID + "/" + itemID }

func (r *MemoryRepo) PutLivestream(ls *domain.Livestream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ls
	r.livestreams[ls.ID] = &cp
}

func (r *MemoryRepo) PutItem(item *domain.AuctionItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items[itemKey(item.LivestreamID, item.ID)] = &cp
}

func (r *MemoryRepo) UpdateItemStatus(ctx context.Context, livestreamID, itemID string, upd domain.ItemUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemKey(livestreamID, itemID)]
	if !ok {
		return errors.New("item not found")
	}
	item.Status = upd.Status
	if upd.EndAt != nil {
		t := *upd.EndAt
		item.EndAt = &t
	}
	if upd.WinnerID != "" {
		item.WinnerID = upd.WinnerID
	}
	if upd.FinalPrice.Valid {
		item.FinalPrice = upd.FinalPrice
	}
	return nil
}

func (r *MemoryRepo) SaveBid(ctx context.Context, bid *domain.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *bid
	r.bids[bid.AuctionID] = append(r.bids[bid.AuctionID], &cp)
	return nil
}

func (r *MemoryRepo) GetItem(ctx context.Context, livestreamID, itemID string) (*domain.AuctionItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemKey(livestreamID, itemID)]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (r *MemoryRepo) GetLivestream(ctx context.Context, livestreamID string) (*domain.Livestream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls, ok := r.livestreams[livestreamID]
	if !ok {
		return nil, nil
	}
	cp := *ls
	return &cp, nil
}

func (r *MemoryRepo) CreateOrder(ctx context.Context, itemID, livestreamID, buyerID string, amount decimal.Decimal) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[itemID]; ok {
		return o.ID, false, nil
	}
	o := &domain.Order{
		ID:           uuid.NewString(),
		ItemID:       itemID,
		LivestreamID: livestreamID,
		BuyerID:      buyerID,
		Amount:       amount,
		Status:       domain.OrderPending,
		CreatedAt:    time.Now().UTC(),
	}
	r.orders[itemID] = o
	return o.ID, true, nil
}

func (r *MemoryRepo) UpdateUserStats(ctx context.Context, userID string, saleAmount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stats[userID]
	st.Sales++
	st.TotalSales = st.TotalSales.Add(saleAmount)
	r.stats[userID] = st
	return nil
}

// Bids returns the bids saved for an auction in arrival order.
func (r *MemoryRepo) Bids(auctionID string) []domain.Bid {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Bid, 0, len(r.bids[auctionID]))
	for _, b := range r.bids[auctionID] {
		out = append(out, *b)
	}
	return out
}

func (r *MemoryRepo) Order(itemID string) (*domain.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[itemID]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

func (r *MemoryRepo) Stats(userID string) UserStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats[userID]
}
