package core

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// StopAuction is the host-initiated close. The timer is cancelled before the
// auction is finalized; stopping an auction that is already gone is a not-found.
func (e *Engine) StopAuction(ctx context.Context, auctionID string) (*domain.AuctionState, error) {
	a, err := e.acquire(auctionID)
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	a.stopTimer()
	err = e.finalizeLocked(ctx, a)
	return a.state.DeepCopy(), err
}

// StopAuctionAs stops the auction on behalf of actorID, who must host its livestream.
func (e *Engine) StopAuctionAs(ctx context.Context, actorID, auctionID string) (*domain.AuctionState, error) {
	a, err := e.acquire(auctionID)
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()

	ls, err := e.ledger.GetLivestream(ctx, a.state.LivestreamID)
	if err != nil {
		e.log.Error("load livestream", zap.String("livestream_id", a.state.LivestreamID), zap.Error(err))
		return nil, persistenceErr("get livestream", err)
	}
	if ls == nil || ls.HostID != actorID {
		return nil, ErrNotHost
	}
	a.stopTimer()
	err = e.finalizeLocked(ctx, a)
	return a.state.DeepCopy(), err
}

// finalizeLocked closes a with a.mu held. It always takes the auction out of
// the active set, even when a write fails, and reports every failed step.
//
// The snapshot moves to finalizing before any ledger write and to closed once
// they are done, so a restart knows which of them may still be missing.
func (e *Engine) finalizeLocked(ctx context.Context, a *auction) error {
	if a.gone {
		return nil
	}
	a.stopTimer()

	s := a.state
	winnerID := s.LeadingBidderID
	price := s.CurrentPrice
	s.Status = domain.StatusFinalizing
	s.TimeLeftMs = 0

	log := e.log.With(zap.String("auction_id", s.AuctionID), zap.String("livestream_id", s.LivestreamID))
	var errs []error
	fail := func(step string, err error) {
		e.metrics.PersistenceFailures.WithLabelValues(step).Inc()
		log.Error("finalize step failed", zap.String("step", step), zap.Error(err))
		errs = append(errs, persistenceErr(step, err))
	}

	if err := e.store.SetState(ctx, s.AuctionID, s); err != nil {
		fail("finalizing_state", err)
	}

	sold := winnerID != ""
	upd := domain.ItemUpdate{Status: domain.ItemUnsold}
	if sold {
		upd = domain.ItemUpdate{Status: domain.ItemSold, WinnerID: winnerID, FinalPrice: decimal.NewNullDecimal(price)}
	}
	endAt := time.UnixMilli(s.EndAt)
	upd.EndAt = &endAt
	if err := e.ledger.UpdateItemStatus(ctx, s.LivestreamID, s.AuctionID, upd); err != nil {
		fail("item_status", err)
	}

	if sold && price.IsPositive() {
		orderID, created, err := e.ledger.CreateOrder(ctx, s.AuctionID, s.LivestreamID, winnerID, price)
		switch {
		case err != nil:
			fail("create_order", err)
		case created:
			log.Info("order created", zap.String("order_id", orderID), zap.String("buyer_id", winnerID))
			e.creditSeller(ctx, s, fail)
		default:
			log.Info("order already exists", zap.String("order_id", orderID))
		}
	}

	s.Status = domain.StatusClosed
	if err := e.store.SetState(ctx, s.AuctionID, s); err != nil {
		fail("final_state", err)
	}

	a.gone = true

	outcome := "unsold"
	if sold {
		outcome = "sold"
	}
	e.metrics.AuctionsClosed.WithLabelValues(outcome).Inc()
	e.sink.Publish(domain.Event{
		Type:         domain.EventClosed,
		AuctionID:    s.AuctionID,
		LivestreamID: s.LivestreamID,
		Payload:      domain.Closed{AuctionID: s.AuctionID, WinnerID: winnerID, FinalPrice: price},
	})

	if err := e.store.DeleteState(ctx, s.AuctionID); err != nil {
		fail("delete_state", err)
	}
	e.remove(a)
	log.Info("auction closed",
		zap.String("outcome", outcome),
		zap.String("winner_id", winnerID),
		zap.String("final_price", price.String()),
		zap.Int("bids", s.BidCount),
	)
	return errors.Join(errs...)
}

func (e *Engine) creditSeller(ctx context.Context, s *domain.AuctionState, fail func(string, error)) {
	ls, err := e.ledger.GetLivestream(ctx, s.LivestreamID)
	if err != nil {
		fail("get_livestream", err)
		return
	}
	if ls == nil || ls.HostID == "" {
		return
	}
	if err := e.ledger.UpdateUserStats(ctx, ls.HostID, s.CurrentPrice); err != nil {
		fail("user_stats", err)
	}
}
