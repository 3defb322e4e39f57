package domain

import "github.com/shopspring/decimal"

type EventType string

const (
	EventStarted     EventType = "started"
	EventBidPlaced   EventType = "bidPlaced"
	EventTimerUpdate EventType = "timerUpdate"
	EventClosed      EventType = "closed"
)

// Event is what the engine emits for the broadcast layer. LivestreamID scopes the
// audience. Payload is one of *AuctionState, BidPlaced, TimerUpdate, Closed.
type Event struct {
	Type         EventType `json:"type"`
	AuctionID    string    `json:"auction_id"`
	LivestreamID string    `json:"livestream_id"`
	Payload      any       `json:"payload"`
}

type BidPlaced struct {
	AuctionID string          `json:"auction_id"`
	Bid       Bid             `json:"bid"`
	NewPrice  decimal.Decimal `json:"new_price"`
	LeaderID  string          `json:"leader_id"`
}

type TimerUpdate struct {
	AuctionID  string `json:"auction_id"`
	TimeLeftMs int64  `json:"time_left_ms"`
}

type Closed struct {
	AuctionID  string          `json:"auction_id"`
	WinnerID   string          `json:"winner_id,omitempty"`
	FinalPrice decimal.Decimal `json:"final_price"`
}
