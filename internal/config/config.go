// Package config loads server settings from defaults, an optional YAML file
// and environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/olyamironova/auction-engine/internal/core"
	"github.com/olyamironova/auction-engine/internal/domain"
)

type Config struct {
	HTTPAddr    string        `yaml:"http_addr"`
	GRPCAddr    string        `yaml:"grpc_addr"`
	LogLevel    string        `yaml:"log_level"`
	StateCodec  string        `yaml:"state_codec"`
	NATSURL     string        `yaml:"nats_url"`
	BidInterval time.Duration `yaml:"bid_interval"`
	Redis       RedisConfig   `yaml:"redis"`
	Ledger      LedgerConfig  `yaml:"ledger"`
	Auction     AuctionConfig `yaml:"auction"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	TTL          time.Duration `yaml:"ttl"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

type LedgerConfig struct {
	Driver      string `yaml:"driver"`
	PostgresURL string `yaml:"postgres_url"`
	SQLitePath  string `yaml:"sqlite_path"`
}

type AuctionConfig struct {
	ClassicDuration    time.Duration   `yaml:"classic_duration"`
	SpeedDuration      time.Duration   `yaml:"speed_duration"`
	Grace              time.Duration   `yaml:"grace"`
	AntiSnipeThreshold time.Duration   `yaml:"anti_snipe_threshold"`
	AntiSnipeReset     time.Duration   `yaml:"anti_snipe_reset"`
	MaxProxyBidders    int             `yaml:"max_proxy_bidders"`
	HistoryLimit       int             `yaml:"history_limit"`
	TickInterval       time.Duration   `yaml:"tick_interval"`
	SweepInterval      time.Duration   `yaml:"sweep_interval"`
	SweepMargin        time.Duration   `yaml:"sweep_margin"`
	PersistTimeout     time.Duration   `yaml:"persist_timeout"`
	Increments         []IncrementStep `yaml:"increments"`
}

// IncrementStep is one ladder row. An empty Below is the catch-all.
type IncrementStep struct {
	Below     string `yaml:"below,omitempty"`
	Increment string `yaml:"increment"`
}

func Default() Config {
	c := core.DefaultConfig()
	steps := make([]IncrementStep, 0, len(c.Increments))
	for _, r := range c.Increments {
		step := IncrementStep{Increment: r.Increment.String()}
		if r.Below.Valid {
			step.Below = r.Below.Decimal.String()
		}
		steps = append(steps, step)
	}
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":9090",
		LogLevel:    "info",
		StateCodec:  "json",
		BidInterval: 100 * time.Millisecond,
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			TTL:          24 * time.Hour,
			ProbeTimeout: 2 * time.Second,
		},
		Ledger: LedgerConfig{
			Driver:     "memory",
			SQLitePath: "auction.db",
		},
		Auction: AuctionConfig{
			ClassicDuration:    c.ClassicDuration,
			SpeedDuration:      c.SpeedDuration,
			Grace:              c.Grace,
			AntiSnipeThreshold: c.AntiSnipeThreshold,
			AntiSnipeReset:     c.AntiSnipeReset,
			MaxProxyBidders:    c.MaxProxyBidders,
			HistoryLimit:       c.HistoryLimit,
			TickInterval:       c.TickInterval,
			SweepInterval:      c.SweepInterval,
			SweepMargin:        c.SweepMargin,
			PersistTimeout:     c.PersistTimeout,
			Increments:         steps,
		},
	}
}

// Load reads path (if not empty) over the defaults and then applies
// environment overrides.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return cfg, err
	}
	if _, err := cfg.Auction.Core(); err != nil {
		return cfg, err
	}
	switch cfg.Ledger.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return cfg, fmt.Errorf("config: unknown ledger driver %q", cfg.Ledger.Driver)
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"HTTP_ADDR":      &cfg.HTTPAddr,
		"GRPC_ADDR":      &cfg.GRPCAddr,
		"LOG_LEVEL":      &cfg.LogLevel,
		"STATE_CODEC":    &cfg.StateCodec,
		"NATS_URL":       &cfg.NATSURL,
		"REDIS_ADDR":     &cfg.Redis.Addr,
		"REDIS_PASSWORD": &cfg.Redis.Password,
		"LEDGER_DRIVER":  &cfg.Ledger.Driver,
		"POSTGRES_URL":   &cfg.Ledger.PostgresURL,
		"SQLITE_PATH":    &cfg.Ledger.SQLitePath,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	if v, ok := lookup("REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	if v, ok := lookup("STATE_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: STATE_TTL: %w", err)
		}
		cfg.Redis.TTL = d
	}
	return nil
}

// Core converts the auction section into engine rules and validates them.
func (a AuctionConfig) Core() (core.Config, error) {
	table := make(domain.IncrementTable, 0, len(a.Increments))
	for i, step := range a.Increments {
		inc, err := decimal.NewFromString(step.Increment)
		if err != nil {
			return core.Config{}, fmt.Errorf("config: increments[%d].increment: %w", i, err)
		}
		rule := domain.IncrementRule{Increment: inc}
		if step.Below != "" {
			below, err := decimal.NewFromString(step.Below)
			if err != nil {
				return core.Config{}, fmt.Errorf("config: increments[%d].below: %w", i, err)
			}
			rule.Below = decimal.NewNullDecimal(below)
		}
		table = append(table, rule)
	}
	c := core.Config{
		ClassicDuration:    a.ClassicDuration,
		SpeedDuration:      a.SpeedDuration,
		Grace:              a.Grace,
		AntiSnipeThreshold: a.AntiSnipeThreshold,
		AntiSnipeReset:     a.AntiSnipeReset,
		MaxProxyBidders:    a.MaxProxyBidders,
		HistoryLimit:       a.HistoryLimit,
		Increments:         table,
		TickInterval:       a.TickInterval,
		SweepInterval:      a.SweepInterval,
		SweepMargin:        a.SweepMargin,
		PersistTimeout:     a.PersistTimeout,
	}
	if err := c.Validate(); err != nil {
		return core.Config{}, fmt.Errorf("config: auction: %w", err)
	}
	return c, nil
}
