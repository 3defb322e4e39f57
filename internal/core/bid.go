package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// op accumulates what one serialized operation produced, so events go out in
// application order after the state is persisted.
type op struct {
	events  []domain.Event
	ledgerE []error
}

// PlaceBid validates and applies a user bid, lets standing max bids answer it,
// persists the state and emits bidPlaced for every accepted bid. A persistence
// error is returned after the bid took effect in memory.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID, bidderName string, amount decimal.Decimal, livestreamID string) (*domain.AuctionState, error) {
	started := time.Now()
	defer func() { e.metrics.BidLatency.Observe(time.Since(started).Seconds()) }()

	a, err := e.acquire(auctionID)
	if err != nil {
		return nil, e.rejected(auctionID, bidderID, err)
	}
	defer a.mu.Unlock()

	s := a.state
	now := e.nowMs()
	switch {
	case s.Status != domain.StatusRunning:
		return nil, e.rejected(auctionID, bidderID, ErrAuctionNotRunning)
	case livestreamID != "" && livestreamID != s.LivestreamID:
		return nil, e.rejected(auctionID, bidderID, ErrWrongLivestream)
	case !amount.IsPositive():
		return nil, e.rejected(auctionID, bidderID, ErrInvalidAmount)
	case now > e.deadline(s):
		return nil, e.rejected(auctionID, bidderID, ErrBiddingClosed)
	}
	if minBid := s.MinimumBid(); amount.LessThan(minBid) {
		return nil, e.rejected(auctionID, bidderID, reject(ErrBidTooLow, "bid must be at least %s", minBid))
	}
	if s.LeadingBidderID == bidderID {
		return nil, e.rejected(auctionID, bidderID, ErrAlreadyLeading)
	}

	var o op
	bid := e.newBid(s, bidderID, bidderName, amount, domain.OriginUser, now)
	e.applyBid(ctx, s, bid, &o)
	e.antiSnipe(a, now)
	e.resolveProxyBids(ctx, s, now, &o)

	err = e.commit(ctx, a, &o)
	return s.DeepCopy(), err
}

// SetMaxBid stores or replaces a bidder's max bid and runs one resolution pass.
func (e *Engine) SetMaxBid(ctx context.Context, auctionID, bidderID, bidderName string, maxAmount decimal.Decimal) (*domain.AuctionState, error) {
	a, err := e.acquire(auctionID)
	if err != nil {
		return nil, e.rejected(auctionID, bidderID, err)
	}
	defer a.mu.Unlock()

	s := a.state
	now := e.nowMs()
	if s.Status != domain.StatusRunning {
		return nil, e.rejected(auctionID, bidderID, ErrAuctionNotRunning)
	}
	if now > e.deadline(s) {
		return nil, e.rejected(auctionID, bidderID, ErrBiddingClosed)
	}
	minBid := s.MinimumBid()
	if maxAmount.LessThan(minBid) {
		return nil, e.rejected(auctionID, bidderID, reject(ErrMaxBidTooLow, "max bid must be at least %s", minBid))
	}

	existing := s.ProxyBids[bidderID]
	if existing == nil || !existing.Active {
		active := 0
		for _, p := range s.ProxyBids {
			if p.Active {
				active++
			}
		}
		if active >= e.cfg.MaxProxyBidders {
			return nil, e.rejected(auctionID, bidderID, ErrTooManyProxyBidders)
		}
	}

	created := now
	if existing != nil {
		created = existing.CreatedAt
	}
	s.ProxyBids[bidderID] = &domain.ProxyBid{
		BidderID:      bidderID,
		BidderName:    bidderName,
		AuctionID:     auctionID,
		MaxAmount:     maxAmount,
		CurrentAmount: minBid,
		Active:        true,
		CreatedAt:     created,
		UpdatedAt:     now,
	}

	var o op
	e.resolveProxyBids(ctx, s, now, &o)
	err = e.commit(ctx, a, &o)
	return s.DeepCopy(), err
}

func (e *Engine) newBid(s *domain.AuctionState, bidderID, name string, amount decimal.Decimal, origin domain.BidOrigin, now int64) domain.Bid {
	return domain.Bid{
		ID:           e.newID(),
		AuctionID:    s.AuctionID,
		LivestreamID: s.LivestreamID,
		BidderID:     bidderID,
		BidderName:   name,
		Amount:       amount,
		Timestamp:    now,
		Origin:       origin,
		Valid:        true,
	}
}

// applyBid is the only place the price changes. It moves the lead to the
// bidder, records history, retires max bids that can no longer win and writes
// the bid to the ledger.
func (e *Engine) applyBid(ctx context.Context, s *domain.AuctionState, bid domain.Bid, o *op) {
	s.CurrentPrice = bid.Amount
	s.LeadingBidderID = bid.BidderID
	s.LeadingBidderName = bid.BidderName
	s.BidCount++

	s.RecentBids = append([]domain.Bid{bid}, s.RecentBids...)
	if len(s.RecentBids) > e.cfg.HistoryLimit {
		s.RecentBids = s.RecentBids[:e.cfg.HistoryLimit]
	}

	for id, p := range s.ProxyBids {
		if id != bid.BidderID && p.Active && p.MaxAmount.LessThanOrEqual(bid.Amount) {
			p.Active = false
			p.UpdatedAt = bid.Timestamp
		}
	}

	if err := e.ledger.SaveBid(ctx, &bid); err != nil {
		e.metrics.PersistenceFailures.WithLabelValues("save_bid").Inc()
		e.log.Error("save bid", zap.String("auction_id", s.AuctionID), zap.String("bid_id", bid.ID), zap.Error(err))
		o.ledgerE = append(o.ledgerE, persistenceErr("save bid", err))
	}

	e.metrics.BidsAccepted.WithLabelValues(string(bid.Origin)).Inc()
	o.events = append(o.events, domain.Event{
		Type:         domain.EventBidPlaced,
		AuctionID:    s.AuctionID,
		LivestreamID: s.LivestreamID,
		Payload: domain.BidPlaced{
			AuctionID: s.AuctionID,
			Bid:       bid,
			NewPrice:  s.CurrentPrice,
			LeaderID:  s.LeadingBidderID,
		},
	})
}

// antiSnipe pushes the end of a classic auction out to the reset window when a
// bid lands inside the threshold. Speed auctions never extend.
func (e *Engine) antiSnipe(a *auction, now int64) {
	s := a.state
	if s.Mode != domain.ModeClassic {
		return
	}
	if s.EndAt-now >= e.cfg.AntiSnipeThreshold.Milliseconds() {
		return
	}
	s.EndAt = now + e.cfg.AntiSnipeReset.Milliseconds()
	s.TimeLeftMs = s.EndAt - now
	e.startTimer(a)
	e.log.Debug("anti-snipe extension", zap.String("auction_id", s.AuctionID), zap.Int64("end_at", s.EndAt))
}

// commit persists the state and then publishes the operation's events.
func (e *Engine) commit(ctx context.Context, a *auction, o *op) error {
	s := a.state
	s.TimeLeftMs = max(0, s.EndAt-e.nowMs())
	err := e.store.SetState(ctx, s.AuctionID, s)
	if err != nil {
		e.metrics.PersistenceFailures.WithLabelValues("save_state").Inc()
		e.log.Error("persist auction state", zap.String("auction_id", s.AuctionID), zap.Error(err))
		err = persistenceErr("save state", err)
	}
	for _, ev := range o.events {
		e.sink.Publish(ev)
	}
	if err != nil {
		return err
	}
	if len(o.ledgerE) > 0 {
		return o.ledgerE[0]
	}
	return nil
}

func (e *Engine) rejected(auctionID, bidderID string, err error) error {
	code := "unknown"
	if r, ok := IsRejection(err); ok {
		code = r.Code
	}
	e.metrics.BidsRejected.WithLabelValues(code).Inc()
	e.log.Debug("request rejected",
		zap.String("auction_id", auctionID),
		zap.String("bidder_id", bidderID),
		zap.String("reason", err.Error()),
	)
	return err
}
