package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/auction-engine/internal/domain"
)

func openRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()
	require.NoError(t, repo.UpsertLivestream(ctx, &domain.Livestream{ID: "live-1", HostID: "host", Title: "Friday drop"}))
	require.NoError(t, repo.UpsertItem(ctx, &domain.AuctionItem{
		ID:            "item-1",
		LivestreamID:  "live-1",
		Title:         "sneakers",
		StartingPrice: decimal.RequireFromString("50"),
		ShippingCost:  decimal.RequireFromString("4.99"),
		Status:        domain.ItemQueued,
		Mode:          domain.ModeSpeed,
	}))
	return repo
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	for i := 0; i < 2; i++ {
		repo, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, repo.Close())
	}
}

func TestGetters(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()

	item, err := repo.GetItem(ctx, "live-1", "item-1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, domain.ModeSpeed, item.Mode)
	assert.Equal(t, domain.ItemQueued, item.Status)
	assert.True(t, item.ShippingCost.Equal(decimal.RequireFromString("4.99")))
	assert.Nil(t, item.EndAt)
	assert.False(t, item.FinalPrice.Valid)

	item, err = repo.GetItem(ctx, "live-2", "item-1")
	require.NoError(t, err)
	assert.Nil(t, item)

	ls, err := repo.GetLivestream(ctx, "live-1")
	require.NoError(t, err)
	assert.Equal(t, "host", ls.HostID)

	ls, err = repo.GetLivestream(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, ls)
}

func TestUpdateItemStatus(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	end := time.UnixMilli(1_700_000_060_000).UTC()

	require.NoError(t, repo.UpdateItemStatus(ctx, "live-1", "item-1", domain.ItemUpdate{Status: domain.ItemRunning, EndAt: &end}))
	require.NoError(t, repo.UpdateItemStatus(ctx, "live-1", "item-1", domain.ItemUpdate{
		Status:     domain.ItemSold,
		WinnerID:   "a",
		FinalPrice: decimal.NewNullDecimal(decimal.RequireFromString("82.5")),
	}))

	item, err := repo.GetItem(ctx, "live-1", "item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemSold, item.Status)
	assert.Equal(t, "a", item.WinnerID)
	require.NotNil(t, item.EndAt)
	assert.True(t, end.Equal(*item.EndAt), "end_at survives a later update without one")
	require.True(t, item.FinalPrice.Valid)
	assert.True(t, item.FinalPrice.Decimal.Equal(decimal.RequireFromString("82.5")))

	err = repo.UpdateItemStatus(ctx, "live-1", "missing", domain.ItemUpdate{Status: domain.ItemUnsold})
	require.Error(t, err)
}

func TestBidsInOrder(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	for i, amount := range []string{"52", "54", "82.50"} {
		require.NoError(t, repo.SaveBid(ctx, &domain.Bid{
			ID:           []string{"b1", "b2", "b3"}[i],
			AuctionID:    "item-1",
			LivestreamID: "live-1",
			BidderID:     "a",
			Amount:       decimal.RequireFromString(amount),
			Timestamp:    int64(1000 + i),
			Origin:       domain.OriginUser,
			Valid:        true,
		}))
	}
	require.NoError(t, repo.SaveBid(ctx, &domain.Bid{ID: "b1", AuctionID: "item-1", Amount: decimal.RequireFromString("1"), Origin: domain.OriginUser}))

	bids, err := repo.ListBids(ctx, "item-1")
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, "b1", bids[0].ID)
	assert.True(t, bids[0].Amount.Equal(decimal.RequireFromString("52")))
	assert.True(t, bids[2].Amount.Equal(decimal.RequireFromString("82.5")))
	assert.True(t, bids[2].Valid)
}

func TestCreateOrderIsIdempotent(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	price := decimal.RequireFromString("82.5")

	first, created, err := repo.CreateOrder(ctx, "item-1", "live-1", "a", price)
	require.NoError(t, err)
	assert.True(t, created)
	second, created, err := repo.CreateOrder(ctx, "item-1", "live-1", "b", decimal.RequireFromString("99"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)

	o, err := repo.Order(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "a", o.BuyerID)
	assert.True(t, o.Amount.Equal(price))
	assert.Equal(t, domain.OrderPending, o.Status)
}

func TestUpdateUserStatsAccumulates(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.UpdateUserStats(ctx, "host", decimal.RequireFromString("82.5")))
	require.NoError(t, repo.UpdateUserStats(ctx, "host", decimal.RequireFromString("17.5")))

	sales, total, err := repo.UserStats(ctx, "host")
	require.NoError(t, err)
	assert.Equal(t, 2, sales)
	assert.True(t, total.Equal(decimal.RequireFromString("100")))
}
