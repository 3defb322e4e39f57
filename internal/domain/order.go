package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
)

// Order is created by the ledger for a sold item. Payment capture happens elsewhere.
type Order struct {
	ID           string
	ItemID       string
	LivestreamID string
	BuyerID      string
	Amount       decimal.Decimal
	Status       OrderStatus
	CreatedAt    time.Time
}
