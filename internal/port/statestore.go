package port

import (
	"context"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// StateStore durably maps auction ids to their latest snapshot. GetState returns
// nil, nil when the id is absent.
type StateStore interface {
	SetState(ctx context.Context, auctionID string, state *domain.AuctionState) error
	GetState(ctx context.Context, auctionID string) (*domain.AuctionState, error)
	DeleteState(ctx context.Context, auctionID string) error
	ListAll(ctx context.Context) ([]*domain.AuctionState, error)
}
