package core

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// Config holds the auction rules and engine timings.
type Config struct {
	ClassicDuration    time.Duration
	SpeedDuration      time.Duration
	Grace              time.Duration
	AntiSnipeThreshold time.Duration
	AntiSnipeReset     time.Duration
	MaxProxyBidders    int
	HistoryLimit       int
	Increments         domain.IncrementTable

	TickInterval   time.Duration
	SweepInterval  time.Duration
	SweepMargin    time.Duration
	PersistTimeout time.Duration
}

func DefaultIncrements() domain.IncrementTable {
	step := func(below, inc int64) domain.IncrementRule {
		return domain.IncrementRule{
			Below:     decimal.NewNullDecimal(decimal.NewFromInt(below)),
			Increment: decimal.NewFromInt(inc),
		}
	}
	return domain.IncrementTable{
		step(20, 1),
		step(100, 2),
		step(500, 5),
		step(1000, 10),
		{Increment: decimal.NewFromInt(25)},
	}
}

func DefaultConfig() Config {
	return Config{
		ClassicDuration:    60 * time.Second,
		SpeedDuration:      20 * time.Second,
		Grace:              time.Second,
		AntiSnipeThreshold: 10 * time.Second,
		AntiSnipeReset:     10 * time.Second,
		MaxProxyBidders:    10,
		HistoryLimit:       20,
		Increments:         DefaultIncrements(),
		TickInterval:       100 * time.Millisecond,
		SweepInterval:      time.Minute,
		SweepMargin:        30 * time.Second,
		PersistTimeout:     5 * time.Second,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.ClassicDuration <= 0 || c.SpeedDuration <= 0 {
		errs = append(errs, errors.New("mode durations must be positive"))
	}
	if c.Grace < 0 {
		errs = append(errs, errors.New("grace must not be negative"))
	}
	if c.AntiSnipeThreshold < 0 || c.AntiSnipeReset < 0 {
		errs = append(errs, errors.New("anti-snipe durations must not be negative"))
	}
	if c.MaxProxyBidders <= 0 {
		errs = append(errs, errors.New("max proxy bidders must be positive"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, errors.New("history limit must be positive"))
	}
	if c.TickInterval <= 0 || c.SweepInterval <= 0 {
		errs = append(errs, errors.New("tick and sweep intervals must be positive"))
	}
	if len(c.Increments) == 0 {
		errs = append(errs, errors.New("increment table is empty"))
	}
	for i, r := range c.Increments {
		if !r.Increment.IsPositive() {
			errs = append(errs, errors.New("increments must be positive"))
			break
		}
		if i > 0 && r.Below.Valid && c.Increments[i-1].Below.Valid &&
			!r.Below.Decimal.GreaterThan(c.Increments[i-1].Below.Decimal) {
			errs = append(errs, errors.New("increment bounds must be ascending"))
			break
		}
		if i < len(c.Increments)-1 && !r.Below.Valid {
			errs = append(errs, errors.New("only the last increment row may be unbounded"))
			break
		}
	}
	return errors.Join(errs...)
}

func (c Config) duration(mode domain.AuctionMode) time.Duration {
	if mode == domain.ModeSpeed {
		return c.SpeedDuration
	}
	return c.ClassicDuration
}
