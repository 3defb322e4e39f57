package domain

import "github.com/shopspring/decimal"

type BidOrigin string

const (
	OriginUser BidOrigin = "user"
	OriginAuto BidOrigin = "auto"
)

// Bid is immutable once created. Timestamp is unix milliseconds.
type Bid struct {
	ID           string          `json:"id"`
	AuctionID    string          `json:"auction_id"`
	LivestreamID string          `json:"livestream_id"`
	BidderID     string          `json:"bidder_id"`
	BidderName   string          `json:"bidder_name"`
	Amount       decimal.Decimal `json:"amount"`
	Timestamp    int64           `json:"timestamp"`
	Origin       BidOrigin       `json:"origin"`
	Valid        bool            `json:"valid"`
}

// ProxyBid is a standing instruction to bid up to MaxAmount on the bidder's behalf.
type ProxyBid struct {
	BidderID      string
	BidderName    string
	AuctionID     string
	MaxAmount     decimal.Decimal
	CurrentAmount decimal.Decimal
	Active        bool
	CreatedAt     int64
	UpdatedAt     int64
}
