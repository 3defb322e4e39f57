package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// Ledger is the system of record for items, bids, livestreams, users and orders.
// Getters return nil, nil when the record is absent.
type Ledger interface {
	UpdateItemStatus(ctx context.Context, livestreamID, itemID string, upd domain.ItemUpdate) error
	SaveBid(ctx context.Context, bid *domain.Bid) error
	GetItem(ctx context.Context, livestreamID, itemID string) (*domain.AuctionItem, error)
	GetLivestream(ctx context.Context, livestreamID string) (*domain.Livestream, error)
	// CreateOrder is idempotent per item: a second call returns the existing order
	// id with created false.
	CreateOrder(ctx context.Context, itemID, livestreamID, buyerID string, amount decimal.Decimal) (orderID string, created bool, err error)
	UpdateUserStats(ctx context.Context, userID string, saleAmount decimal.Decimal) error
}
