package metric

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	AuctionsStarted     prometheus.Counter
	AuctionsClosed      *prometheus.CounterVec
	BidsAccepted        *prometheus.CounterVec
	BidsRejected        *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	ForcedFinalizations prometheus.Counter
	Recovered           *prometheus.CounterVec
	ActiveAuctions      prometheus.Gauge
	BidLatency          prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuctionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "started_total",
			Help:      "Total number of auctions started",
		}),
		AuctionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "closed_total",
			Help:      "Total number of auctions closed by outcome",
		}, []string{"outcome"}),
		BidsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "bids_accepted_total",
			Help:      "Total number of bids accepted by origin",
		}, []string{"origin"}),
		BidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "bids_rejected_total",
			Help:      "Total number of bid and max bid requests rejected by reason",
		}, []string{"reason"}),
		PersistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "persistence_failures_total",
			Help:      "Total number of failed state store or ledger writes by step",
		}, []string{"step"}),
		ForcedFinalizations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "forced_finalizations_total",
			Help:      "Auctions finalized by the safety-net sweep",
		}),
		Recovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "recovered_total",
			Help:      "Persisted auctions handled at startup by action",
		}, []string{"action"}),
		ActiveAuctions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "auction",
			Name:      "active",
			Help:      "Number of auctions currently driven by the engine",
		}),
		BidLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "auction",
			Name:      "bid_latency_seconds",
			Help:      "Time to process a bid",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.AuctionsStarted,
			m.AuctionsClosed,
			m.BidsAccepted,
			m.BidsRejected,
			m.PersistenceFailures,
			m.ForcedFinalizations,
			m.Recovered,
			m.ActiveAuctions,
			m.BidLatency,
		)
	}
	return m
}
