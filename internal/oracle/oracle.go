// Package oracle is the gateway to the price feeds. It owns the two
// freshness policies of the engine:
//
//   - Durable tier (asset prices): every update overwrites the prior record;
//     a reading older than the staleness window is rejected on read, but the
//     record itself is never deleted.
//   - Ephemeral tier (exclusive-market prices): values expire automatically
//     after a TTL; an expired price is simply absent, no staleness check.
//
// The two policies model different trust semantics and are deliberately not
// unified.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/auth"
	"github.com/sapp/margin-engine/internal/metrics"
	"github.com/sapp/margin-engine/internal/model"
	"github.com/sapp/margin-engine/internal/store"
	"github.com/sapp/margin-engine/internal/stream"
)

const (
	// StalenessWindow is the maximum age of a durable-tier price reading
	// before it is rejected for trading decisions.
	StalenessWindow = 300 * time.Second

	// ExclusiveTTL is the lifetime of an exclusive-market price in the
	// ephemeral tier.
	ExclusiveTTL = time.Hour
)

var (
	// ErrInvalidPrice is returned when a price update is not positive.
	ErrInvalidPrice = errors.New("oracle: price must be positive")

	// ErrPriceNotFound is returned when no price was ever recorded for an
	// asset.
	ErrPriceNotFound = errors.New("oracle: price not found")

	// ErrPriceStale is returned when the recorded price is older than the
	// staleness window.
	ErrPriceStale = errors.New("oracle: price is stale")

	// ErrPriceNotAvailable is returned when an exclusive-market price has
	// expired or was never set.
	ErrPriceNotAvailable = errors.New("oracle: exclusive price not available")

	// ErrOracleNotBound is returned when an exclusive price update targets
	// a market with no registered oracle binding.
	ErrOracleNotBound = errors.New("oracle: no oracle bound for market")
)

// Gateway reads and writes prices across both tiers and enforces the
// freshness rules. The clock is injected so staleness can be tested.
type Gateway struct {
	store     store.Store
	ephemeral store.EphemeralPriceStore
	hub       *stream.Hub // optional
	now       func() time.Time
}

// NewGateway creates a price oracle gateway. Pass nil for hub if WebSocket
// broadcasting is not needed; pass nil for now to use the wall clock.
func NewGateway(st store.Store, ephemeral store.EphemeralPriceStore, hub *stream.Hub, now func() time.Time) *Gateway {
	if now == nil {
		now = time.Now
	}
	return &Gateway{
		store:     st,
		ephemeral: ephemeral,
		hub:       hub,
		now:       now,
	}
}

// UpdatePrice records a new durable-tier price for an asset, overwriting any
// prior value. Admin only.
func (g *Gateway) UpdatePrice(ctx context.Context, caller, asset string, price decimal.Decimal) error {
	cfg, err := g.store.GetConfig(ctx)
	if err != nil {
		return err
	}
	if err := auth.RequireAccount(caller, cfg.Admin); err != nil {
		return err
	}

	if !price.IsPositive() {
		return ErrInvalidPrice
	}

	data := model.PriceData{
		Price:     price,
		Timestamp: g.now().UTC(),
	}
	if err := g.store.PutPrice(ctx, asset, data); err != nil {
		return fmt.Errorf("persist price: %w", err)
	}

	metrics.PriceUpdates.WithLabelValues("durable").Inc()
	slog.Info("price updated", "asset", asset, "price", price.String())

	if g.hub != nil {
		g.hub.Broadcast(stream.Event{
			Type:  stream.EventPriceUpdate,
			Asset: asset,
			Price: price.String(),
		})
	}
	return nil
}

// AssetPrice returns the current durable-tier price for an asset. Staleness
// is evaluated fresh on every read, never cached.
func (g *Gateway) AssetPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	data, err := g.store.GetPrice(ctx, asset)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Decimal{}, ErrPriceNotFound
	}
	if err != nil {
		return decimal.Decimal{}, err
	}

	if g.now().Sub(data.Timestamp) > StalenessWindow {
		return decimal.Decimal{}, ErrPriceStale
	}
	return data.Price, nil
}

// UpdateExclusivePrice records a new exclusive-market price in the ephemeral
// tier. The market must have a registered oracle binding; admin only. The
// price lives for ExclusiveTTL and then vanishes.
func (g *Gateway) UpdateExclusivePrice(ctx context.Context, caller string, market model.ExclusiveMarket, price decimal.Decimal) error {
	if _, err := g.store.GetMarketOracle(ctx, market); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrOracleNotBound
		}
		return err
	}

	cfg, err := g.store.GetConfig(ctx)
	if err != nil {
		return err
	}
	if err := auth.RequireAccount(caller, cfg.Admin); err != nil {
		return err
	}

	if err := g.ephemeral.SetPrice(ctx, market, price, ExclusiveTTL); err != nil {
		return fmt.Errorf("persist exclusive price: %w", err)
	}

	metrics.PriceUpdates.WithLabelValues("ephemeral").Inc()
	slog.Info("exclusive price updated", "market", market, "price", price.String())

	if g.hub != nil {
		g.hub.Broadcast(stream.Event{
			Type:   stream.EventExclusivePrice,
			Market: string(market),
			Price:  price.String(),
		})
	}
	return nil
}

// ExclusivePrice returns the live ephemeral-tier price for a market.
func (g *Gateway) ExclusivePrice(ctx context.Context, market model.ExclusiveMarket) (decimal.Decimal, error) {
	price, err := g.ephemeral.GetPrice(ctx, market)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrPriceNotAvailable, market)
	}
	if err != nil {
		return decimal.Decimal{}, err
	}
	return price, nil
}
