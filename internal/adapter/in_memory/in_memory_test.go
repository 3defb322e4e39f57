package in_memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/auction-engine/internal/domain"
)

func TestStateStoreCopiesOnWriteAndRead(t *testing.T) {
	ctx := context.Background()
	st := NewStateStore()

	s := &domain.AuctionState{
		AuctionID:    "a1",
		Status:       domain.StatusRunning,
		CurrentPrice: decimal.NewFromInt(10),
		ProxyBids:    map[string]*domain.ProxyBid{"u": {BidderID: "u", Active: true}},
	}
	require.NoError(t, st.SetState(ctx, "a1", s))
	s.ProxyBids["u"].Active = false

	got, err := st.GetState(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.ProxyBids["u"].Active)

	got.CurrentPrice = decimal.NewFromInt(99)
	again, _ := st.GetState(ctx, "a1")
	assert.Equal(t, "10", again.CurrentPrice.String())
}

func TestStateStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	st := NewStateStore()
	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, st.SetState(ctx, id, &domain.AuctionState{AuctionID: id}))
	}
	all, err := st.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].AuctionID)

	require.NoError(t, st.DeleteState(ctx, "a"))
	missing, err := st.GetState(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryRepoOrdersAreIdempotentPerItem(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	id1, created, err := r.CreateOrder(ctx, "item", "live", "buyer", decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, created)
	id2, created, err := r.CreateOrder(ctx, "item", "live", "other", decimal.NewFromInt(9))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	o, ok := r.Order("item")
	require.True(t, ok)
	assert.Equal(t, "buyer", o.BuyerID)
}

func TestMemoryRepoItemLifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	r.PutItem(&domain.AuctionItem{ID: "i", LivestreamID: "l", Status: domain.ItemQueued})

	require.Error(t, r.UpdateItemStatus(ctx, "l", "missing", domain.ItemUpdate{Status: domain.ItemSold}))
	require.NoError(t, r.UpdateItemStatus(ctx, "l", "i", domain.ItemUpdate{
		Status:     domain.ItemSold,
		WinnerID:   "w",
		FinalPrice: decimal.NewNullDecimal(decimal.NewFromInt(12)),
	}))

	item, err := r.GetItem(ctx, "l", "i")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemSold, item.Status)
	assert.Equal(t, "w", item.WinnerID)
	assert.Equal(t, "12", item.FinalPrice.Decimal.String())

	require.NoError(t, r.UpdateUserStats(ctx, "host", decimal.NewFromInt(12)))
	require.NoError(t, r.UpdateUserStats(ctx, "host", decimal.NewFromInt(3)))
	assert.Equal(t, 2, r.Stats("host").Sales)
	assert.Equal(t, "15", r.Stats("host").TotalSales.String())
}
