package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/metric"
	"github.com/olyamironova/auction-engine/internal/port"
)

// Engine owns the active auctions, drives their timers and finalizes them.
// Every operation on one auction runs under that auction's lock; different
// auctions proceed in parallel.
type Engine struct {
	cfg    Config
	store  port.StateStore
	ledger port.Ledger
	sink   port.EventSink

	log     *zap.Logger
	metrics *metric.Metrics
	now     func() time.Time
	newID   func() string

	mu      sync.RWMutex
	active  map[string]*auction
	closing bool

	timers sync.WaitGroup
}

// auction is one entry of the active set. gone is set once it has been
// finalized so late callers holding the pointer back off.
type auction struct {
	mu    sync.Mutex
	state *domain.AuctionState
	timer *auctionTimer
	gone  bool
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *metric.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces the wall clock used for bid timestamps and deadlines.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

func NewEngine(cfg Config, store port.StateStore, ledger port.Ledger, sink port.EventSink, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || ledger == nil {
		return nil, errors.New("engine: state store and ledger are required")
	}
	if sink == nil {
		sink = port.NopSink{}
	}
	e := &Engine{
		cfg:    cfg,
		store:  store,
		ledger: ledger,
		sink:   sink,
		log:    zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
		active: make(map[string]*auction),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metric.New(prometheus.NewRegistry())
	}
	return e, nil
}

func (e *Engine) nowMs() int64 { return e.now().UnixMilli() }

func (e *Engine) deadline(s *domain.AuctionState) int64 {
	return s.EndAt + e.cfg.Grace.Milliseconds()
}

// acquire returns the live auction with its lock held.
func (e *Engine) acquire(auctionID string) (*auction, error) {
	e.mu.RLock()
	a := e.active[auctionID]
	e.mu.RUnlock()
	if a == nil {
		return nil, ErrAuctionNotFound
	}
	a.mu.Lock()
	if a.gone {
		a.mu.Unlock()
		return nil, ErrAuctionNotFound
	}
	return a, nil
}

func (e *Engine) remove(a *auction) {
	e.mu.Lock()
	if cur, ok := e.active[a.state.AuctionID]; ok && cur == a {
		delete(e.active, a.state.AuctionID)
	}
	n := len(e.active)
	e.mu.Unlock()
	e.metrics.ActiveAuctions.Set(float64(n))
}

func (e *Engine) snapshot() []*auction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*auction, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, a)
	}
	return out
}

// persistCtx bounds background writes that are not tied to a request.
func (e *Engine) persistCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.cfg.PersistTimeout)
}

// StartItem loads a queued item and its livestream, checks that actorID hosts
// the livestream and starts the auction.
func (e *Engine) StartItem(ctx context.Context, actorID, livestreamID, itemID string) (*domain.AuctionState, error) {
	ls, err := e.ledger.GetLivestream(ctx, livestreamID)
	if err != nil {
		e.log.Error("load livestream", zap.String("livestream_id", livestreamID), zap.Error(err))
		return nil, persistenceErr("get livestream", err)
	}
	if ls == nil {
		return nil, reject(ErrItemNotFound, "livestream %s not found", livestreamID)
	}
	if ls.HostID != actorID {
		return nil, ErrNotHost
	}
	item, err := e.ledger.GetItem(ctx, livestreamID, itemID)
	if err != nil {
		e.log.Error("load item", zap.String("item_id", itemID), zap.Error(err))
		return nil, persistenceErr("get item", err)
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	if item.Status != domain.ItemQueued {
		return nil, reject(ErrItemNotQueued, "item is %s, not queued", item.Status)
	}
	return e.StartAuction(ctx, item)
}

// StartAuction makes item live: it persists a fresh state, marks the item
// running in the ledger, starts the countdown and emits started. On error the
// auction is not live.
func (e *Engine) StartAuction(ctx context.Context, item *domain.AuctionItem) (*domain.AuctionState, error) {
	if !item.Mode.Valid() {
		return nil, reject(ErrInvalidMode, "unknown auction mode %q", item.Mode)
	}

	now := e.now()
	endAt := now.Add(e.cfg.duration(item.Mode))
	state := &domain.AuctionState{
		AuctionID:    item.ID,
		LivestreamID: item.LivestreamID,
		Status:       domain.StatusRunning,
		CurrentPrice: item.StartingPrice,
		TimeLeftMs:   endAt.Sub(now).Milliseconds(),
		EndAt:        endAt.UnixMilli(),
		Mode:         item.Mode,
		ProxyBids:    make(map[string]*domain.ProxyBid),
		RecentBids:   make([]domain.Bid, 0, e.cfg.HistoryLimit),
		Increments:   e.cfg.Increments.Clone(),
	}

	a := &auction{state: state}
	a.mu.Lock()
	defer a.mu.Unlock()

	e.mu.Lock()
	if _, exists := e.active[item.ID]; exists {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.active[item.ID] = a
	e.mu.Unlock()

	log := e.log.With(zap.String("auction_id", item.ID), zap.String("livestream_id", item.LivestreamID))

	if err := e.store.SetState(ctx, item.ID, state); err != nil {
		a.gone = true
		e.remove(a)
		e.metrics.PersistenceFailures.WithLabelValues("start_state").Inc()
		log.Error("persist new auction", zap.Error(err))
		return nil, persistenceErr("save state", err)
	}

	endTime := endAt
	if err := e.ledger.UpdateItemStatus(ctx, item.LivestreamID, item.ID, domain.ItemUpdate{
		Status: domain.ItemRunning,
		EndAt:  &endTime,
	}); err != nil {
		a.gone = true
		e.remove(a)
		if derr := e.store.DeleteState(ctx, item.ID); derr != nil {
			log.Warn("drop state of failed start", zap.Error(derr))
		}
		e.metrics.PersistenceFailures.WithLabelValues("start_item").Inc()
		log.Error("mark item running", zap.Error(err))
		return nil, persistenceErr("update item", err)
	}

	e.startTimer(a)
	e.metrics.AuctionsStarted.Inc()
	e.metrics.ActiveAuctions.Set(float64(len(e.snapshot())))
	e.sink.Publish(domain.Event{
		Type:         domain.EventStarted,
		AuctionID:    state.AuctionID,
		LivestreamID: state.LivestreamID,
		Payload:      state.DeepCopy(),
	})
	log.Info("auction started", zap.String("mode", string(item.Mode)), zap.Int64("end_at", state.EndAt))
	return state.DeepCopy(), nil
}

// GetState returns a copy of a live auction's state.
func (e *Engine) GetState(auctionID string) (*domain.AuctionState, error) {
	a, err := e.acquire(auctionID)
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	a.state.TimeLeftMs = max(0, a.state.EndAt-e.nowMs())
	return a.state.DeepCopy(), nil
}

// ActiveAuctions lists the ids in the active set, sorted.
func (e *Engine) ActiveAuctions() []string {
	e.mu.RLock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// SetViewerCount records the audience size of every live auction in a livestream.
func (e *Engine) SetViewerCount(livestreamID string, n int) {
	for _, a := range e.snapshot() {
		a.mu.Lock()
		if !a.gone && a.state.LivestreamID == livestreamID {
			a.state.ViewerCount = n
		}
		a.mu.Unlock()
	}
}

// Run recovers persisted auctions, calls onReady with the report and then
// drives the safety-net sweep until ctx is done. onReady may be nil.
func (e *Engine) Run(ctx context.Context, onReady func(RecoveryReport)) error {
	rep, err := e.Recover(ctx)
	if err != nil {
		return err
	}
	if onReady != nil {
		onReady(rep)
	}
	e.Sweep(ctx)
	return nil
}

// Close cancels every timer and waits for the tick goroutines to exit. Live
// auctions stay in the state store for the next process to recover. No timer
// starts after Close.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()

	for _, a := range e.snapshot() {
		a.mu.Lock()
		a.stopTimer()
		a.mu.Unlock()
	}
	e.timers.Wait()
}
