package market

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/auth"
	"github.com/sapp/margin-engine/internal/model"
	"github.com/sapp/margin-engine/internal/oracle"
	"github.com/sapp/margin-engine/internal/store"
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func newTestRegistry(t *testing.T) (*Registry, *oracle.Gateway) {
	t.Helper()
	st := store.NewMemoryStore()
	if err := st.InitConfig(context.Background(), model.DefaultEngineConfig("admin", "oracle-feed")); err != nil {
		t.Fatalf("init config: %v", err)
	}
	gateway := oracle.NewGateway(st, store.NewMemoryPriceStore(nil), nil, nil)
	return NewRegistry(st, gateway), gateway
}

func wtiConfig() *model.ExclusiveDerivative {
	return &model.ExclusiveDerivative{
		Market:         model.MarketWTI,
		Exchange:       "NYMEX",
		OracleFeed:     "feed-wti",
		TickSize:       d(100),
		ContractSize:   d(1000),
		MinMarginRatio: d(500),
		SettlementType: model.SettlementPhysical,
	}
}

func TestRegister_AdminOnly(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := registry.Register(ctx, "mallory", wtiConfig()); !errors.Is(err, auth.ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
	if err := registry.Register(ctx, "admin", wtiConfig()); err != nil {
		t.Errorf("admin register failed: %v", err)
	}
}

func TestRegister_RejectsUnknownMarket(t *testing.T) {
	registry, _ := newTestRegistry(t)

	cfg := wtiConfig()
	cfg.Market = "PORKBELLIES"
	if err := registry.Register(context.Background(), "admin", cfg); err == nil {
		t.Error("expected error for unknown market")
	}
}

func TestRegister_OverwritesAndRebinds(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := registry.Register(ctx, "admin", wtiConfig()); err != nil {
		t.Fatalf("register: %v", err)
	}

	updated := wtiConfig()
	updated.Exchange = "ICE"
	updated.MinMarginRatio = d(750)
	if err := registry.Register(ctx, "admin", updated); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	got, err := registry.Validate(ctx, model.MarketWTI)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.Exchange != "ICE" || !got.MinMarginRatio.Equal(d(750)) {
		t.Errorf("re-registration not applied: %+v", got)
	}
}

func TestValidate_Unregistered(t *testing.T) {
	registry, _ := newTestRegistry(t)

	if _, err := registry.Validate(context.Background(), model.MarketBrent); !errors.Is(err, ErrMarketNotRegistered) {
		t.Errorf("expected ErrMarketNotRegistered, got %v", err)
	}
}

func TestSpreadPrice(t *testing.T) {
	registry, gateway := newTestRegistry(t)
	ctx := context.Background()

	for _, m := range []model.ExclusiveMarket{model.MarketWTI, model.MarketBrent} {
		cfg := wtiConfig()
		cfg.Market = m
		cfg.OracleFeed = "feed-" + string(m)
		if err := registry.Register(ctx, "admin", cfg); err != nil {
			t.Fatalf("register %s: %v", m, err)
		}
	}

	// $6,300 WTI vs $6,700 Brent at the 1e7 price scale.
	if err := gateway.UpdateExclusivePrice(ctx, "admin", model.MarketWTI, d(6_300_000_000_000)); err != nil {
		t.Fatalf("update WTI: %v", err)
	}
	if err := gateway.UpdateExclusivePrice(ctx, "admin", model.MarketBrent, d(6_700_000_000_000)); err != nil {
		t.Fatalf("update Brent: %v", err)
	}

	spread, err := registry.SpreadPrice(ctx, model.MarketWTI, model.MarketBrent)
	if err != nil {
		t.Fatalf("spread: %v", err)
	}
	if !spread.Equal(d(-400_000_000_000)) {
		t.Errorf("expected spread -400000000000, got %s", spread)
	}

	// Reversing the legs negates the spread.
	reversed, err := registry.SpreadPrice(ctx, model.MarketBrent, model.MarketWTI)
	if err != nil {
		t.Fatalf("reversed spread: %v", err)
	}
	if !reversed.Equal(spread.Neg()) {
		t.Errorf("expected reversed spread %s, got %s", spread.Neg(), reversed)
	}
}

func TestSpreadPrice_MissingLeg(t *testing.T) {
	registry, gateway := newTestRegistry(t)
	ctx := context.Background()

	if err := registry.Register(ctx, "admin", wtiConfig()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := gateway.UpdateExclusivePrice(ctx, "admin", model.MarketWTI, d(6_300_000_000_000)); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := registry.SpreadPrice(ctx, model.MarketWTI, model.MarketBrent); !errors.Is(err, oracle.ErrPriceNotAvailable) {
		t.Errorf("expected ErrPriceNotAvailable for unpriced leg, got %v", err)
	}
}
