package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/olyamironova/auction-engine/internal/codec"
	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
)

const keyPrefix = "auction:state:"

var _ port.StateStore = (*RedisStateStore)(nil)

// RedisStateStore keeps one encoded AuctionState per key. Every write refreshes
// the TTL so abandoned auctions eventually disappear.
type RedisStateStore struct {
	client *redis.Client
	codec  codec.Codec
	ttl    time.Duration
}

func NewRedisStateStore(addr string, password string, db int, ttl time.Duration, c codec.Codec) *RedisStateStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStateStoreFromClient(rdb, ttl, c)
}

func NewRedisStateStoreFromClient(client *redis.Client, ttl time.Duration, c codec.Codec) *RedisStateStore {
	if c == nil {
		c = codec.JSON{}
	}
	return &RedisStateStore{
		client: client,
		codec:  c,
		ttl:    ttl,
	}
}

func key(auctionID string) string { return keyPrefix + auctionID }

func (c *RedisStateStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStateStore) Close() error {
	return c.client.Close()
}

func (c *RedisStateStore) SetState(ctx context.Context, auctionID string, state *domain.AuctionState) error {
	b, err := c.codec.Marshal(state)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(auctionID), b, c.ttl).Err()
}

func (c *RedisStateStore) GetState(ctx context.Context, auctionID string) (*domain.AuctionState, error) {
	b, err := c.client.Get(ctx, key(auctionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.codec.Unmarshal(b)
}

func (c *RedisStateStore) DeleteState(ctx context.Context, auctionID string) error {
	return c.client.Del(ctx, key(auctionID)).Err()
}

// ListAll scans the state keys. Keys that expire mid-scan are skipped; a value
// that fails to decode aborts the listing.
func (c *RedisStateStore) ListAll(ctx context.Context) ([]*domain.AuctionState, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan states: %w", err)
	}
	sort.Strings(keys)

	out := make([]*domain.AuctionState, 0, len(keys))
	for _, k := range keys {
		b, err := c.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s, err := c.codec.Unmarshal(b)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", k, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// SelectStateStore returns primary when it answers a PING within timeout and
// fallback otherwise.
func SelectStateStore(ctx context.Context, primary *RedisStateStore, fallback port.StateStore, timeout time.Duration, log *zap.Logger) port.StateStore {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := primary.Ping(pctx); err != nil {
		log.Warn("redis unavailable, keeping auction state in memory", zap.Error(err))
		return fallback
	}
	log.Info("using redis state store")
	return primary
}
