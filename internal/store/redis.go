package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/model"
)

// RedisPriceStore implements EphemeralPriceStore on Redis. Expiry is native:
// SET with TTL, and a key that has expired is gone — there is no staleness
// arithmetic on this tier, unlike the durable asset-price tier.
type RedisPriceStore struct {
	rdb *redis.Client
}

// NewRedisPriceStore creates a Redis-backed ephemeral price store.
func NewRedisPriceStore(rdb *redis.Client) *RedisPriceStore {
	return &RedisPriceStore{rdb: rdb}
}

func (s *RedisPriceStore) SetPrice(ctx context.Context, market model.ExclusiveMarket, price decimal.Decimal, ttl time.Duration) error {
	return s.rdb.Set(ctx, exclusivePriceKey(market), price.String(), ttl).Err()
}

func (s *RedisPriceStore) GetPrice(ctx context.Context, market model.ExclusiveMarket) (decimal.Decimal, error) {
	val, err := s.rdb.Get(ctx, exclusivePriceKey(market)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Decimal{}, ErrNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("get exclusive price %s: %w", market, err)
	}

	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("corrupt exclusive price %s: %w", market, err)
	}
	return price, nil
}

func exclusivePriceKey(m model.ExclusiveMarket) string {
	return fmt.Sprintf("xprice:%s", m)
}
