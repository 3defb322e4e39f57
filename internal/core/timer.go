package core

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// auctionTimer is the cancel handle of one tick goroutine.
type auctionTimer struct {
	done chan struct{}
	once sync.Once
}

func (t *auctionTimer) stop() {
	t.once.Do(func() { close(t.done) })
}

// stopTimer must be called with a.mu held.
func (a *auction) stopTimer() {
	if a.timer != nil {
		a.timer.stop()
		a.timer = nil
	}
}

// startTimer cancels any previous ticker of a and starts a fresh one against
// the current EndAt. Must be called with a.mu held. Once the engine is closing
// it only cancels.
func (e *Engine) startTimer(a *auction) {
	a.stopTimer()

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closing {
		return
	}
	t := &auctionTimer{done: make(chan struct{})}
	a.timer = t
	e.timers.Add(1)
	go e.runTimer(a, t)
}

func (e *Engine) runTimer(a *auction, t *auctionTimer) {
	defer e.timers.Done()
	tk := time.NewTicker(e.cfg.TickInterval)
	defer tk.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-tk.C:
			if e.tick(a, t) {
				return
			}
		}
	}
}

// tick reports whether the ticker should exit. A ticker that was replaced or
// whose auction is gone exits without touching state.
func (e *Engine) tick(a *auction, t *auctionTimer) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gone || a.timer != t {
		return true
	}

	now := e.nowMs()
	s := a.state
	s.TimeLeftMs = max(0, s.EndAt-now)
	e.sink.Publish(domain.Event{
		Type:         domain.EventTimerUpdate,
		AuctionID:    s.AuctionID,
		LivestreamID: s.LivestreamID,
		Payload:      domain.TimerUpdate{AuctionID: s.AuctionID, TimeLeftMs: s.TimeLeftMs},
	})

	if now < e.deadline(s) {
		return false
	}
	ctx, cancel := e.persistCtx()
	defer cancel()
	if err := e.finalizeLocked(ctx, a); err != nil {
		e.log.Error("finalize on expiry", zap.String("auction_id", s.AuctionID), zap.Error(err))
	}
	return true
}
