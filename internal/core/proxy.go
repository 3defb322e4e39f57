package core

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// resolveProxyBids runs one pass of the max-bid auction. The highest max wins
// at one increment over the runner-up's max (or over the current price when it
// stands alone), capped at its own max. It is not iterated to a fixed point.
func (e *Engine) resolveProxyBids(ctx context.Context, s *domain.AuctionState, now int64, o *op) {
	active := s.ActiveProxyBids()
	if len(active) == 0 {
		return
	}
	top := active[0]

	// A lone max bid never raises against its own lead.
	if len(active) == 1 && top.BidderID == s.LeadingBidderID {
		return
	}

	floor := s.CurrentPrice
	if len(active) > 1 {
		floor = active[1].MaxAmount
	}
	price := decimal.Min(top.MaxAmount, floor.Add(s.Increments.IncrementAt(floor)))
	if !price.GreaterThan(s.CurrentPrice) {
		return
	}

	bid := e.newBid(s, top.BidderID, top.BidderName, price, domain.OriginAuto, now)
	e.applyBid(ctx, s, bid, o)
	top.CurrentAmount = price
	top.UpdatedAt = now
}
