package codec

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// StateRecord is the storage shape of an AuctionState. Proxy bids are an ordered
// list of (bidder id, proxy bid) pairs so formats without map keys can carry them.
type StateRecord struct {
	AuctionID         string          `json:"auction_id"`
	LivestreamID      string          `json:"livestream_id"`
	Status            string          `json:"status"`
	CurrentPrice      string          `json:"current_price"`
	LeadingBidderID   string          `json:"leading_bidder_id,omitempty"`
	LeadingBidderName string          `json:"leading_bidder_name,omitempty"`
	TimeLeftMs        int64           `json:"time_left_ms"`
	EndAt             int64           `json:"end_at"`
	Mode              string          `json:"mode"`
	BidCount          int             `json:"bid_count"`
	ViewerCount       int             `json:"viewer_count"`
	ProxyBids         []ProxyEntry    `json:"proxy_bids"`
	RecentBids        []BidRecord     `json:"recent_bids"`
	Increments        []IncrementStep `json:"increments"`
}

type ProxyEntry struct {
	BidderID string      `json:"bidder_id"`
	Proxy    ProxyRecord `json:"proxy"`
}

type ProxyRecord struct {
	BidderID      string `json:"bidder_id"`
	BidderName    string `json:"bidder_name,omitempty"`
	AuctionID     string `json:"auction_id"`
	MaxAmount     string `json:"max_amount"`
	CurrentAmount string `json:"current_amount"`
	Active        bool   `json:"active"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

type BidRecord struct {
	ID           string `json:"id"`
	AuctionID    string `json:"auction_id"`
	LivestreamID string `json:"livestream_id"`
	BidderID     string `json:"bidder_id"`
	BidderName   string `json:"bidder_name"`
	Amount       string `json:"amount"`
	Timestamp    int64  `json:"timestamp"`
	Origin       string `json:"origin"`
	Valid        bool   `json:"valid"`
}

// IncrementStep has a nil Below for the unbounded catch-all.
type IncrementStep struct {
	Below     *string `json:"lt"`
	Increment string  `json:"increment"`
}

func ToRecord(s *domain.AuctionState) *StateRecord {
	rec := &StateRecord{
		AuctionID:         s.AuctionID,
		LivestreamID:      s.LivestreamID,
		Status:            string(s.Status),
		CurrentPrice:      s.CurrentPrice.String(),
		LeadingBidderID:   s.LeadingBidderID,
		LeadingBidderName: s.LeadingBidderName,
		TimeLeftMs:        s.TimeLeftMs,
		EndAt:             s.EndAt,
		Mode:              string(s.Mode),
		BidCount:          s.BidCount,
		ViewerCount:       s.ViewerCount,
		ProxyBids:         make([]ProxyEntry, 0, len(s.ProxyBids)),
		RecentBids:        make([]BidRecord, 0, len(s.RecentBids)),
		Increments:        make([]IncrementStep, 0, len(s.Increments)),
	}

	ids := make([]string, 0, len(s.ProxyBids))
	for id := range s.ProxyBids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := s.ProxyBids[id]
		rec.ProxyBids = append(rec.ProxyBids, ProxyEntry{
			BidderID: id,
			Proxy: ProxyRecord{
				BidderID:      p.BidderID,
				BidderName:    p.BidderName,
				AuctionID:     p.AuctionID,
				MaxAmount:     p.MaxAmount.String(),
				CurrentAmount: p.CurrentAmount.String(),
				Active:        p.Active,
				CreatedAt:     p.CreatedAt,
				UpdatedAt:     p.UpdatedAt,
			},
		})
	}
	for _, b := range s.RecentBids {
		rec.RecentBids = append(rec.RecentBids, BidToRecord(b))
	}
	for _, r := range s.Increments {
		step := IncrementStep{Increment: r.Increment.String()}
		if r.Below.Valid {
			v := r.Below.Decimal.String()
			step.Below = &v
		}
		rec.Increments = append(rec.Increments, step)
	}
	return rec
}

func BidToRecord(b domain.Bid) BidRecord {
	return BidRecord{
		ID:           b.ID,
		AuctionID:    b.AuctionID,
		LivestreamID: b.LivestreamID,
		BidderID:     b.BidderID,
		BidderName:   b.BidderName,
		Amount:       b.Amount.String(),
		Timestamp:    b.Timestamp,
		Origin:       string(b.Origin),
		Valid:        b.Valid,
	}
}

func FromRecord(rec *StateRecord) (*domain.AuctionState, error) {
	price, err := decimal.NewFromString(rec.CurrentPrice)
	if err != nil {
		return nil, fmt.Errorf("codec: current price: %w", err)
	}
	s := &domain.AuctionState{
		AuctionID:         rec.AuctionID,
		LivestreamID:      rec.LivestreamID,
		Status:            domain.AuctionStatus(rec.Status),
		CurrentPrice:      price,
		LeadingBidderID:   rec.LeadingBidderID,
		LeadingBidderName: rec.LeadingBidderName,
		TimeLeftMs:        rec.TimeLeftMs,
		EndAt:             rec.EndAt,
		Mode:              domain.AuctionMode(rec.Mode),
		BidCount:          rec.BidCount,
		ViewerCount:       rec.ViewerCount,
		ProxyBids:         make(map[string]*domain.ProxyBid, len(rec.ProxyBids)),
		RecentBids:        make([]domain.Bid, 0, len(rec.RecentBids)),
		Increments:        make(domain.IncrementTable, 0, len(rec.Increments)),
	}

	for _, e := range rec.ProxyBids {
		maxAmount, err := decimal.NewFromString(e.Proxy.MaxAmount)
		if err != nil {
			return nil, fmt.Errorf("codec: proxy %s max amount: %w", e.BidderID, err)
		}
		current, err := decimal.NewFromString(e.Proxy.CurrentAmount)
		if err != nil {
			return nil, fmt.Errorf("codec: proxy %s current amount: %w", e.BidderID, err)
		}
		s.ProxyBids[e.BidderID] = &domain.ProxyBid{
			BidderID:      e.Proxy.BidderID,
			BidderName:    e.Proxy.BidderName,
			AuctionID:     e.Proxy.AuctionID,
			MaxAmount:     maxAmount,
			CurrentAmount: current,
			Active:        e.Proxy.Active,
			CreatedAt:     e.Proxy.CreatedAt,
			UpdatedAt:     e.Proxy.UpdatedAt,
		}
	}
	for _, br := range rec.RecentBids {
		b, err := BidFromRecord(br)
		if err != nil {
			return nil, err
		}
		s.RecentBids = append(s.RecentBids, b)
	}
	for _, step := range rec.Increments {
		inc, err := decimal.NewFromString(step.Increment)
		if err != nil {
			return nil, fmt.Errorf("codec: increment: %w", err)
		}
		rule := domain.IncrementRule{Increment: inc}
		if step.Below != nil {
			below, err := decimal.NewFromString(*step.Below)
			if err != nil {
				return nil, fmt.Errorf("codec: increment bound: %w", err)
			}
			rule.Below = decimal.NewNullDecimal(below)
		}
		s.Increments = append(s.Increments, rule)
	}
	return s, nil
}

func BidFromRecord(br BidRecord) (domain.Bid, error) {
	amount, err := decimal.NewFromString(br.Amount)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("codec: bid %s amount: %w", br.ID, err)
	}
	return domain.Bid{
		ID:           br.ID,
		AuctionID:    br.AuctionID,
		LivestreamID: br.LivestreamID,
		BidderID:     br.BidderID,
		BidderName:   br.BidderName,
		Amount:       amount,
		Timestamp:    br.Timestamp,
		Origin:       domain.BidOrigin(br.Origin),
		Valid:        br.Valid,
	}, nil
}
