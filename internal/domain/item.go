package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemStatus string
type AuctionMode string

const (
	ItemQueued  ItemStatus = "queued"
	ItemRunning ItemStatus = "running"
	ItemSold    ItemStatus = "sold"
	ItemUnsold  ItemStatus = "unsold"

	ModeClassic AuctionMode = "classic"
	ModeSpeed   AuctionMode = "speed"
)

// AuctionItem is a sellable unit owned by the ledger. The engine reads it once
// to start an auction and writes its status back on finalize.
type AuctionItem struct {
	ID            string
	LivestreamID  string
	Title         string
	StartingPrice decimal.Decimal
	ShippingCost  decimal.Decimal
	Category      string
	Status        ItemStatus
	Mode          AuctionMode
	EndAt         *time.Time
	WinnerID      string
	FinalPrice    decimal.NullDecimal
}

func (m AuctionMode) Valid() bool {
	return m == ModeClassic || m == ModeSpeed
}

type Livestream struct {
	ID     string
	HostID string
	Title  string
}

// ItemUpdate carries the optional fields of a status change.
type ItemUpdate struct {
	Status     ItemStatus
	EndAt      *time.Time
	WinnerID   string
	FinalPrice decimal.NullDecimal
}
