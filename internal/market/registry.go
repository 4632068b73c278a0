// Package market manages the configuration of the exclusive derivative
// markets: a closed set of commodity markets (WTI, Brent, RBOB, heating oil,
// natural gas, gold, silver, copper) whose contracts are configured by the
// admin and priced off the ephemeral oracle tier.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/auth"
	"github.com/sapp/margin-engine/internal/model"
	"github.com/sapp/margin-engine/internal/oracle"
	"github.com/sapp/margin-engine/internal/store"
)

// ErrMarketNotRegistered is returned when an operation references a market
// the admin has not configured.
var ErrMarketNotRegistered = errors.New("market: not registered")

// Registry owns exclusive-market configuration and spread pricing.
type Registry struct {
	store  store.Store
	prices *oracle.Gateway
}

// NewRegistry creates an exclusive market registry.
func NewRegistry(st store.Store, prices *oracle.Gateway) *Registry {
	return &Registry{store: st, prices: prices}
}

// Register persists the configuration for a market, overwriting any prior
// configuration, and binds the oracle feed used to authorize later price
// updates. Admin only.
func (r *Registry) Register(ctx context.Context, caller string, cfg *model.ExclusiveDerivative) error {
	ecfg, err := r.store.GetConfig(ctx)
	if err != nil {
		return err
	}
	if err := auth.RequireAccount(caller, ecfg.Admin); err != nil {
		return err
	}

	if !cfg.Market.Valid() {
		return fmt.Errorf("market: unknown exclusive market %q", cfg.Market)
	}

	if err := r.store.PutMarketConfig(ctx, cfg); err != nil {
		return fmt.Errorf("persist market config: %w", err)
	}

	slog.Info("exclusive market registered",
		"market", cfg.Market,
		"exchange", cfg.Exchange,
		"contract_size", cfg.ContractSize.String(),
		"min_margin_ratio", cfg.MinMarginRatio.String(),
	)
	return nil
}

// Validate returns the configuration for a market, or ErrMarketNotRegistered.
func (r *Registry) Validate(ctx context.Context, m model.ExclusiveMarket) (*model.ExclusiveDerivative, error) {
	cfg, err := r.store.GetMarketConfig(ctx, m)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotRegistered, m)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// SpreadPrice returns priceA − priceB for two markets. Both legs must have a
// live ephemeral price. Order matters: reversing the arguments negates the
// result.
func (r *Registry) SpreadPrice(ctx context.Context, a, b model.ExclusiveMarket) (decimal.Decimal, error) {
	priceA, err := r.prices.ExclusivePrice(ctx, a)
	if err != nil {
		return decimal.Decimal{}, err
	}
	priceB, err := r.prices.ExclusivePrice(ctx, b)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return priceA.Sub(priceB), nil
}
