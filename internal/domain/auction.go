package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

type AuctionStatus string

const (
	StatusQueued     AuctionStatus = "queued"
	StatusRunning    AuctionStatus = "running"
	StatusFinalizing AuctionStatus = "finalizing"
	StatusClosed     AuctionStatus = "closed"
)

var statusRank = map[AuctionStatus]int{
	StatusQueued:     0,
	StatusRunning:    1,
	StatusFinalizing: 2,
	StatusClosed:     3,
}

// CanAdvance reports whether moving from s to next keeps the status moving forward.
func (s AuctionStatus) CanAdvance(next AuctionStatus) bool {
	from, ok1 := statusRank[s]
	to, ok2 := statusRank[next]
	return ok1 && ok2 && to > from
}

// AuctionState is the mutable aggregate the engine owns for one running auction.
// Times are unix milliseconds.
type AuctionState struct {
	AuctionID         string
	LivestreamID      string
	Status            AuctionStatus
	CurrentPrice      decimal.Decimal
	LeadingBidderID   string
	LeadingBidderName string
	TimeLeftMs        int64
	EndAt             int64
	Mode              AuctionMode
	BidCount          int
	ViewerCount       int
	ProxyBids         map[string]*ProxyBid
	RecentBids        []Bid
	Increments        IncrementTable
}

// DeepCopy returns a copy sharing no mutable memory with s.
func (s *AuctionState) DeepCopy() *AuctionState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.ProxyBids = make(map[string]*ProxyBid, len(s.ProxyBids))
	for k, p := range s.ProxyBids {
		pc := *p
		cp.ProxyBids[k] = &pc
	}
	if s.RecentBids != nil {
		cp.RecentBids = make([]Bid, len(s.RecentBids))
		copy(cp.RecentBids, s.RecentBids)
	}
	cp.Increments = s.Increments.Clone()
	return &cp
}

// ActiveProxyBids returns the active proxy bids, highest max first. Ties keep
// the earlier submission ahead.
func (s *AuctionState) ActiveProxyBids() []*ProxyBid {
	out := make([]*ProxyBid, 0, len(s.ProxyBids))
	for _, p := range s.ProxyBids {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].MaxAmount.Equal(out[j].MaxAmount) {
			return out[i].MaxAmount.GreaterThan(out[j].MaxAmount)
		}
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].BidderID < out[j].BidderID
	})
	return out
}

// MinimumBid is the smallest amount the next bid must reach.
func (s *AuctionState) MinimumBid() decimal.Decimal {
	return s.Increments.MinimumBid(s.CurrentPrice)
}
