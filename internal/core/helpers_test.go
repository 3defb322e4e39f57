package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/auction-engine/internal/adapter/in_memory"
	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Publish(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) ofType(t domain.EventType) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// flakyStore fails SetState while failSet is true, SetState of closed
// snapshots while failClosed is true and DeleteState while failDelete is true.
type flakyStore struct {
	port.StateStore
	failSet    atomic.Bool
	failClosed atomic.Bool
	failDelete atomic.Bool
}

func (f *flakyStore) SetState(ctx context.Context, id string, s *domain.AuctionState) error {
	if f.failSet.Load() || (f.failClosed.Load() && s.Status == domain.StatusClosed) {
		return errors.New("connection refused")
	}
	return f.StateStore.SetState(ctx, id, s)
}

func (f *flakyStore) DeleteState(ctx context.Context, id string) error {
	if f.failDelete.Load() {
		return errors.New("connection reset")
	}
	return f.StateStore.DeleteState(ctx, id)
}

// countingLedger counts order creation and can fail item updates.
type countingLedger struct {
	*in_memory.MemoryRepo
	orders     atomic.Int32
	failUpdate atomic.Bool
}

func (l *countingLedger) CreateOrder(ctx context.Context, itemID, livestreamID, buyerID string, amount decimal.Decimal) (string, bool, error) {
	l.orders.Add(1)
	return l.MemoryRepo.CreateOrder(ctx, itemID, livestreamID, buyerID, amount)
}

func (l *countingLedger) UpdateItemStatus(ctx context.Context, livestreamID, itemID string, upd domain.ItemUpdate) error {
	if l.failUpdate.Load() {
		return errors.New("ledger unavailable")
	}
	return l.MemoryRepo.UpdateItemStatus(ctx, livestreamID, itemID, upd)
}

type harness struct {
	engine *Engine
	clock  *fakeClock
	store  *flakyStore
	ledger *countingLedger
	sink   *recordingSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.SweepInterval = 10 * time.Millisecond
	return cfg
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	h := &harness{
		clock:  newFakeClock(),
		store:  &flakyStore{StateStore: in_memory.NewStateStore()},
		ledger: &countingLedger{MemoryRepo: in_memory.NewMemoryRepo()},
		sink:   &recordingSink{},
	}
	h.ledger.PutLivestream(&domain.Livestream{ID: "live-1", HostID: "host"})

	var seq atomic.Int64
	e, err := NewEngine(cfg, h.store, h.ledger, h.sink,
		WithClock(h.clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("bid-%d", seq.Add(1)) }),
	)
	require.NoError(t, err)
	h.engine = e
	t.Cleanup(e.Close)
	return h
}

func (h *harness) item(id string, mode domain.AuctionMode, price int64) *domain.AuctionItem {
	item := &domain.AuctionItem{
		ID:            id,
		LivestreamID:  "live-1",
		StartingPrice: decimal.NewFromInt(price),
		Status:        domain.ItemQueued,
		Mode:          mode,
	}
	h.ledger.PutItem(item)
	return item
}

func (h *harness) start(t *testing.T, id string, mode domain.AuctionMode, price int64) *domain.AuctionState {
	t.Helper()
	s, err := h.engine.StartAuction(context.Background(), h.item(id, mode, price))
	require.NoError(t, err)
	return s
}

func (h *harness) bid(auctionID, bidder string, amount int64) (*domain.AuctionState, error) {
	return h.engine.PlaceBid(context.Background(), auctionID, bidder, bidder, decimal.NewFromInt(amount), "live-1")
}

func (h *harness) maxBid(auctionID, bidder string, amount int64) (*domain.AuctionState, error) {
	return h.engine.SetMaxBid(context.Background(), auctionID, bidder, bidder, decimal.NewFromInt(amount))
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func requirePrice(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(dec(want)), "price: want %d, got %s", want, got)
}
