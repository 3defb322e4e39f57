package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/auction-engine/internal/domain"
)

func (h *harness) persisted(t *testing.T, id string, status domain.AuctionStatus, endIn time.Duration, leader string, price int64) {
	t.Helper()
	h.item(id, domain.ModeClassic, 10)
	s := &domain.AuctionState{
		AuctionID:       id,
		LivestreamID:    "live-1",
		Status:          status,
		CurrentPrice:    dec(price),
		LeadingBidderID: leader,
		EndAt:           h.clock.Now().Add(endIn).UnixMilli(),
		Mode:            domain.ModeClassic,
	}
	require.NoError(t, h.store.SetState(context.Background(), id, s))
}

func eventsFor(events []domain.Event, auctionID string) []domain.Event {
	var out []domain.Event
	for _, ev := range events {
		if ev.AuctionID == auctionID {
			out = append(out, ev)
		}
	}
	return out
}

func TestRecoverFinalizesExpiredAuctions(t *testing.T) {
	h := newHarness(t)
	h.persisted(t, "expired", domain.StatusRunning, -5*time.Second, "a", 70)
	h.persisted(t, "half-done", domain.StatusFinalizing, -time.Minute, "", 10)

	rep, err := h.engine.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{Finalized: 2}, rep)
	assert.Empty(t, h.engine.ActiveAuctions())

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.sink.ofType(domain.EventStarted))
	assert.Empty(t, h.sink.ofType(domain.EventTimerUpdate))
	assert.Len(t, h.sink.ofType(domain.EventClosed), 2)

	item, _ := h.ledger.GetItem(context.Background(), "live-1", "expired")
	assert.Equal(t, domain.ItemSold, item.Status)
	_, ok := h.ledger.Order("expired")
	assert.True(t, ok)

	item, _ = h.ledger.GetItem(context.Background(), "live-1", "half-done")
	assert.Equal(t, domain.ItemUnsold, item.Status)

	left, err := h.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, left)

	_, err = h.bid("expired", "b", 100)
	require.ErrorIs(t, err, ErrAuctionNotFound)
}

func TestRecoverResumesLiveAuctions(t *testing.T) {
	h := newHarness(t)
	h.persisted(t, "live", domain.StatusRunning, 30*time.Second, "a", 40)
	h.persisted(t, "in-grace", domain.StatusRunning, -500*time.Millisecond, "", 10)

	rep, err := h.engine.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{Resumed: 2}, rep)
	assert.Equal(t, []string{"in-grace", "live"}, h.engine.ActiveAuctions())
	assert.Empty(t, h.sink.ofType(domain.EventStarted))

	s, err := h.bid("live", "b", 42)
	require.NoError(t, err)
	requirePrice(t, 42, s.CurrentPrice)

	require.Eventually(t, func() bool {
		return len(eventsFor(h.sink.ofType(domain.EventTimerUpdate), "live")) > 0
	}, time.Second, 5*time.Millisecond)

	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return len(eventsFor(h.sink.ofType(domain.EventClosed), "in-grace")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"live"}, h.engine.ActiveAuctions())
}

func TestSweepForcesStaleAuctions(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.TickInterval = time.Hour })
	h.start(t, "item-1", domain.ModeSpeed, 10)

	h.clock.Advance(20*time.Second + 5*time.Second)
	assert.Zero(t, h.engine.SweepOnce(), "inside the sweep margin")

	h.clock.Advance(30 * time.Second)
	assert.Equal(t, 1, h.engine.SweepOnce())
	assert.Empty(t, h.engine.ActiveAuctions())
	assert.Len(t, h.sink.ofType(domain.EventClosed), 1)
}

func TestRunRecoversAndSweeps(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.TickInterval = time.Hour })
	h.persisted(t, "expired", domain.StatusRunning, -time.Minute, "", 10)
	h.start(t, "stale", domain.ModeSpeed, 10)
	h.clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan RecoveryReport, 1)
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx, func(rep RecoveryReport) { ready <- rep }) }()

	select {
	case rep := <-ready:
		assert.Equal(t, RecoveryReport{Finalized: 1, Skipped: 1}, rep)
	case <-time.After(time.Second):
		t.Fatal("recovery never reported ready")
	}
	require.Eventually(t, func() bool {
		return len(h.engine.ActiveAuctions()) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, h.sink.ofType(domain.EventClosed), 2)
}

// restart builds a second engine over the same store and ledger, as a new
// process would after a crash.
func (h *harness) restart(t *testing.T) (*Engine, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	e, err := NewEngine(testConfig(), h.store, h.ledger, sink, WithClock(h.clock.Now))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, sink
}

func TestRecoverClosedSnapshotCreditsSellerOnce(t *testing.T) {
	h := newHarness(t)
	h.start(t, "item-1", domain.ModeClassic, 10)
	_, err := h.bid("item-1", "a", 50)
	require.NoError(t, err)

	h.store.failDelete.Store(true)
	_, err = h.engine.StopAuction(context.Background(), "item-1")
	require.ErrorIs(t, err, ErrPersistence)
	h.store.failDelete.Store(false)

	stored, err := h.store.GetState(context.Background(), "item-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.StatusClosed, stored.Status)

	next, sink := h.restart(t)
	rep, err := next.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{Cleaned: 1}, rep)

	stats := h.ledger.Stats("host")
	assert.Equal(t, 1, stats.Sales)
	requirePrice(t, 50, stats.TotalSales)
	assert.EqualValues(t, 1, h.ledger.orders.Load())
	assert.Empty(t, sink.ofType(domain.EventClosed))
	assert.Len(t, h.sink.ofType(domain.EventClosed), 1)

	left, err := h.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRecoverFinalizingSnapshotDoesNotCreditTwice(t *testing.T) {
	h := newHarness(t)
	h.start(t, "item-1", domain.ModeClassic, 10)
	_, err := h.bid("item-1", "a", 50)
	require.NoError(t, err)

	h.store.failClosed.Store(true)
	h.store.failDelete.Store(true)
	_, err = h.engine.StopAuction(context.Background(), "item-1")
	require.ErrorIs(t, err, ErrPersistence)
	h.store.failClosed.Store(false)
	h.store.failDelete.Store(false)

	stored, err := h.store.GetState(context.Background(), "item-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.StatusFinalizing, stored.Status)

	next, sink := h.restart(t)
	rep, err := next.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{Finalized: 1}, rep)

	stats := h.ledger.Stats("host")
	assert.Equal(t, 1, stats.Sales)
	requirePrice(t, 50, stats.TotalSales)
	order, ok := h.ledger.Order("item-1")
	require.True(t, ok)
	assert.Equal(t, "a", order.BuyerID)
	assert.Len(t, sink.ofType(domain.EventClosed), 1)

	left, err := h.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, left)
}
