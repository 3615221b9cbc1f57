package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pricefeed/internal/feed/memorystore"

	"github.com/redis/go-redis/v9"
)

// LatestPrice is the JSON value stored per symbol in the latest hash.
type LatestPrice struct {
	Symbol   string `json:"symbol"`
	Price    string `json:"price"`     // decimal
	PriceRaw string `json:"price_raw"` // scaled by 10^18
	Ts       int64  `json:"ts"`        // unix seconds
}

// Mirror publishes the last flushed prices to a Redis hash so other services
// can read them without touching the database.
type Mirror struct {
	rdb       *redis.Client
	ttl       time.Duration
	keyLatest string // prefix + ":latest"
}

// NewClient connects and pings.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func NewMirror(rdb *redis.Client, prefix string, ttl time.Duration) *Mirror {
	if prefix == "" {
		prefix = "pricefeed"
	}
	return &Mirror{rdb: rdb, ttl: ttl, keyLatest: prefix + ":latest"}
}

// PublishLatest writes every observation in one pipeline.
func (m *Mirror) PublishLatest(ctx context.Context, prices []memorystore.PriceObservation) error {
	if len(prices) == 0 {
		return nil
	}

	values := make([]any, 0, len(prices)*2)
	for _, p := range prices {
		b, err := json.Marshal(LatestPrice{
			Symbol:   p.Symbol,
			Price:    p.Price.Denormalize(),
			PriceRaw: p.Price.String(),
			Ts:       p.ObservedAt.Unix(),
		})
		if err != nil {
			return fmt.Errorf("marshal latest price %s: %w", p.Symbol, err)
		}
		values = append(values, p.Symbol, string(b))
	}

	pipe := m.rdb.Pipeline()
	pipe.HSet(ctx, m.keyLatest, values...)
	if m.ttl > 0 {
		pipe.Expire(ctx, m.keyLatest, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish latest prices: %w", err)
	}
	return nil
}

// GetLatest reads one symbol back. It returns nil, nil when the symbol is absent.
func (m *Mirror) GetLatest(ctx context.Context, symbol string) (*LatestPrice, error) {
	data, err := m.rdb.HGet(ctx, m.keyLatest, symbol).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest price %s: %w", symbol, err)
	}

	var lp LatestPrice
	if err := json.Unmarshal(data, &lp); err != nil {
		return nil, fmt.Errorf("unmarshal latest price %s: %w", symbol, err)
	}
	return &lp, nil
}
