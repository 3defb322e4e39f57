package dto

import (
	"github.com/shopspring/decimal"

	"github.com/olyamironova/auction-engine/internal/domain"
)

type PlaceBidRequest struct {
	LivestreamID string          `json:"livestream_id"`
	BidderName   string          `json:"bidder_name"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
}

type SetMaxBidRequest struct {
	BidderName string          `json:"bidder_name"`
	MaxAmount  decimal.Decimal `json:"max_amount" binding:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type Bid struct {
	ID         string          `json:"id"`
	BidderID   string          `json:"bidder_id"`
	BidderName string          `json:"bidder_name,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Timestamp  int64           `json:"timestamp"`
	Origin     string          `json:"origin"`
}

// Auction is the public view of a live auction. Other bidders' max amounts are
// never exposed; only how many max bids are standing.
type Auction struct {
	AuctionID         string          `json:"auction_id"`
	LivestreamID      string          `json:"livestream_id"`
	Status            string          `json:"status"`
	Mode              string          `json:"mode"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	MinimumBid        decimal.Decimal `json:"minimum_bid"`
	LeadingBidderID   string          `json:"leading_bidder_id,omitempty"`
	LeadingBidderName string          `json:"leading_bidder_name,omitempty"`
	TimeLeftMs        int64           `json:"time_left_ms"`
	EndAt             int64           `json:"end_at"`
	BidCount          int             `json:"bid_count"`
	ViewerCount       int             `json:"viewer_count"`
	ActiveMaxBids     int             `json:"active_max_bids"`
	RecentBids        []Bid           `json:"recent_bids"`
}

type ActiveAuctionsResponse struct {
	AuctionIDs []string `json:"auction_ids"`
}

func FromBid(b domain.Bid) Bid {
	return Bid{
		ID:         b.ID,
		BidderID:   b.BidderID,
		BidderName: b.BidderName,
		Amount:     b.Amount,
		Timestamp:  b.Timestamp,
		Origin:     string(b.Origin),
	}
}

func FromState(s *domain.AuctionState) Auction {
	bids := make([]Bid, len(s.RecentBids))
	for i, b := range s.RecentBids {
		bids[i] = FromBid(b)
	}
	out := Auction{
		AuctionID:         s.AuctionID,
		LivestreamID:      s.LivestreamID,
		Status:            string(s.Status),
		Mode:              string(s.Mode),
		CurrentPrice:      s.CurrentPrice,
		LeadingBidderID:   s.LeadingBidderID,
		LeadingBidderName: s.LeadingBidderName,
		TimeLeftMs:        s.TimeLeftMs,
		EndAt:             s.EndAt,
		BidCount:          s.BidCount,
		ViewerCount:       s.ViewerCount,
		ActiveMaxBids:     len(s.ActiveProxyBids()),
		RecentBids:        bids,
	}
	if s.Status == domain.StatusRunning {
		out.MinimumBid = s.MinimumBid()
	}
	return out
}
