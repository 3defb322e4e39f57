package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// RecoveryReport counts what Recover did with each persisted auction.
type RecoveryReport struct {
	Resumed   int
	Finalized int
	Cleaned   int
	Skipped   int
}

// Recover rebuilds the active set from the state store. Running auctions still
// inside their grace window get their timer back; the rest are finalized
// without ever becoming live. Snapshots left in finalizing are finalized again;
// closed ones already reached the ledger and subscribers and are only deleted.
// Call it before accepting traffic.
func (e *Engine) Recover(ctx context.Context) (RecoveryReport, error) {
	var rep RecoveryReport
	states, err := e.store.ListAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("recover: list states: %w", err)
	}

	now := e.nowMs()
	for _, s := range states {
		if e.isActive(s.AuctionID) {
			rep.Skipped++
			continue
		}
		if len(s.Increments) == 0 {
			s.Increments = e.cfg.Increments.Clone()
		}
		if s.ProxyBids == nil {
			s.ProxyBids = make(map[string]*domain.ProxyBid)
		}
		log := e.log.With(zap.String("auction_id", s.AuctionID), zap.String("status", string(s.Status)))

		switch {
		case s.Status == domain.StatusRunning && now <= e.deadline(s):
			if e.resume(s, now) {
				rep.Resumed++
				e.metrics.Recovered.WithLabelValues("resumed").Inc()
				log.Info("auction resumed", zap.Int64("time_left_ms", s.TimeLeftMs))
			} else {
				rep.Skipped++
			}
		case s.Status == domain.StatusRunning,
			s.Status == domain.StatusFinalizing:
			if err := e.finalizeDetached(ctx, s); err != nil {
				log.Error("finalize during recovery", zap.Error(err))
			}
			rep.Finalized++
			e.metrics.Recovered.WithLabelValues("finalized").Inc()
		case s.Status == domain.StatusClosed:
			if err := e.store.DeleteState(ctx, s.AuctionID); err != nil {
				log.Error("delete closed snapshot", zap.Error(err))
				rep.Skipped++
				continue
			}
			rep.Cleaned++
			e.metrics.Recovered.WithLabelValues("cleaned").Inc()
		default:
			rep.Skipped++
			log.Warn("skipping persisted auction in unexpected status")
		}
	}
	e.log.Info("recovery complete",
		zap.Int("resumed", rep.Resumed),
		zap.Int("finalized", rep.Finalized),
		zap.Int("cleaned", rep.Cleaned),
		zap.Int("skipped", rep.Skipped),
	)
	return rep, nil
}

func (e *Engine) resume(s *domain.AuctionState, now int64) bool {
	s.TimeLeftMs = max(0, s.EndAt-now)
	a := &auction{state: s}
	a.mu.Lock()
	defer a.mu.Unlock()

	e.mu.Lock()
	if _, exists := e.active[s.AuctionID]; exists {
		e.mu.Unlock()
		return false
	}
	e.active[s.AuctionID] = a
	n := len(e.active)
	e.mu.Unlock()

	e.metrics.ActiveAuctions.Set(float64(n))
	e.startTimer(a)
	return true
}

func (e *Engine) isActive(auctionID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.active[auctionID]
	return ok
}

// finalizeDetached closes an auction that never entered the active set.
func (e *Engine) finalizeDetached(ctx context.Context, s *domain.AuctionState) error {
	a := &auction{state: s}
	a.mu.Lock()
	defer a.mu.Unlock()
	return e.finalizeLocked(ctx, a)
}

// Sweep periodically force-finalizes running auctions whose timer evidently
// failed to fire. It returns when ctx is done.
func (e *Engine) Sweep(ctx context.Context) {
	tk := time.NewTicker(e.cfg.SweepInterval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			e.SweepOnce()
		}
	}
}

// SweepOnce runs one safety-net pass and returns how many auctions it closed.
func (e *Engine) SweepOnce() int {
	cutoff := e.cfg.Grace + e.cfg.SweepMargin
	closed := 0
	for _, a := range e.snapshot() {
		a.mu.Lock()
		s := a.state
		if !a.gone && s.Status == domain.StatusRunning && e.nowMs() > s.EndAt+cutoff.Milliseconds() {
			e.log.Warn("force-finalizing stale auction", zap.String("auction_id", s.AuctionID), zap.Int64("end_at", s.EndAt))
			ctx, cancel := e.persistCtx()
			if err := e.finalizeLocked(ctx, a); err != nil {
				e.log.Error("forced finalize", zap.String("auction_id", s.AuctionID), zap.Error(err))
			}
			cancel()
			e.metrics.ForcedFinalizations.Inc()
			closed++
		}
		a.mu.Unlock()
	}
	return closed
}
