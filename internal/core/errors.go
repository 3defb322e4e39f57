package core

import (
	"errors"
	"fmt"
)

// Rejection is a client-visible refusal: validation failures and unknown
// auctions. Nothing was mutated when one is returned.
type Rejection struct {
	Code   string
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

// Is matches rejections by code so detailed reasons still compare equal to the
// exported sentinels.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Code == r.Code
}

var (
	ErrAuctionNotFound     = &Rejection{Code: "not_found", Reason: "auction not found"}
	ErrAuctionNotRunning   = &Rejection{Code: "not_running", Reason: "auction is not running"}
	ErrAlreadyRunning      = &Rejection{Code: "already_running", Reason: "auction is already running"}
	ErrBiddingClosed       = &Rejection{Code: "bidding_closed", Reason: "bidding has closed"}
	ErrBidTooLow           = &Rejection{Code: "bid_too_low", Reason: "bid is below the minimum"}
	ErrInvalidAmount       = &Rejection{Code: "invalid_amount", Reason: "amount must be positive"}
	ErrAlreadyLeading      = &Rejection{Code: "already_leading", Reason: "you are already the highest bidder"}
	ErrWrongLivestream     = &Rejection{Code: "wrong_livestream", Reason: "auction does not belong to this livestream"}
	ErrMaxBidTooLow        = &Rejection{Code: "max_bid_too_low", Reason: "max bid is below the minimum"}
	ErrTooManyProxyBidders = &Rejection{Code: "too_many_proxy_bidders", Reason: "too many max bids on this auction"}
	ErrItemNotFound        = &Rejection{Code: "item_not_found", Reason: "item not found"}
	ErrItemNotQueued       = &Rejection{Code: "item_not_queued", Reason: "item is not queued"}
	ErrInvalidMode         = &Rejection{Code: "invalid_mode", Reason: "unknown auction mode"}
	ErrNotHost             = &Rejection{Code: "not_host", Reason: "only the livestream host can do that"}
)

// ErrPersistence marks a state store or ledger failure. Callers show a generic
// message; the cause is only logged.
var ErrPersistence = errors.New("auction: persistence failure")

func reject(base *Rejection, format string, args ...any) *Rejection {
	return &Rejection{Code: base.Code, Reason: fmt.Sprintf(format, args...)}
}

func persistenceErr(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, step, err)
}

// IsRejection reports whether err is a client-visible rejection and returns it.
func IsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
