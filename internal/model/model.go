// Package model defines the core domain types shared across the margin engine.
// All monetary values use shopspring/decimal — never float64 for money.
//
// Prices are fixed-point integers scaled by 1e7: a stored price of
// 50_000_000_000 means $5,000. Sizes and collateral share the same scale, so
// PnL computed relative to the entry price comes out in collateral units.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Position is a single-asset leveraged position. Positions are created by
// open, deleted by close or liquidate, and never updated in place. The
// MarginRatio field is a snapshot taken at open (always 10000 basis points);
// live risk must be recomputed through the margin engine.
type Position struct {
	ID          uint64          `json:"id" db:"id"`
	Owner       string          `json:"owner" db:"owner"`
	Asset       string          `json:"asset" db:"asset"`
	IsLong      bool            `json:"is_long" db:"is_long"`
	Size        decimal.Decimal `json:"size" db:"size"`               // notional, scaled 1e7
	Collateral  decimal.Decimal `json:"collateral" db:"collateral"`   // scaled 1e7
	EntryPrice  decimal.Decimal `json:"entry_price" db:"entry_price"` // scaled 1e7
	Leverage    uint32          `json:"leverage" db:"leverage"`
	MarginRatio decimal.Decimal `json:"margin_ratio" db:"margin_ratio"` // basis points, open snapshot
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// PriceData is one oracle reading for an asset, overwritten on every update.
// Readings older than the staleness window are rejected at read time but are
// never physically deleted.
type PriceData struct {
	Price     decimal.Decimal `json:"price" db:"price"` // scaled 1e7
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// ExclusiveMarket names one of the fixed commodity markets. The enumeration
// is closed: markets cannot be added at runtime, only configured.
type ExclusiveMarket string

const (
	MarketWTI     ExclusiveMarket = "WTI"
	MarketBrent   ExclusiveMarket = "BRENT"
	MarketRBOB    ExclusiveMarket = "RBOB"
	MarketHeatOil ExclusiveMarket = "HEATOIL"
	MarketNatGas  ExclusiveMarket = "NATGAS"
	MarketGold    ExclusiveMarket = "GOLD"
	MarketSilver  ExclusiveMarket = "SILVER"
	MarketCopper  ExclusiveMarket = "COPPER"
)

var exclusiveMarkets = map[ExclusiveMarket]bool{
	MarketWTI:     true,
	MarketBrent:   true,
	MarketRBOB:    true,
	MarketHeatOil: true,
	MarketNatGas:  true,
	MarketGold:    true,
	MarketSilver:  true,
	MarketCopper:  true,
}

// Valid reports whether m names one of the fixed commodity markets.
func (m ExclusiveMarket) Valid() bool {
	return exclusiveMarkets[m]
}

// ParseExclusiveMarket validates a market name from an external request.
func ParseExclusiveMarket(s string) (ExclusiveMarket, error) {
	m := ExclusiveMarket(s)
	if !m.Valid() {
		return "", fmt.Errorf("model: unknown exclusive market %q", s)
	}
	return m, nil
}

// Settlement types for exclusive derivatives.
const (
	SettlementCash     = "cash"
	SettlementPhysical = "physical"
)

// ExclusiveDerivative is the per-market configuration set by admin
// registration. Re-registration overwrites the previous configuration.
type ExclusiveDerivative struct {
	Market         ExclusiveMarket `json:"market" db:"market"`
	Exchange       string          `json:"exchange" db:"exchange"` // "CME", "ICE", "NYMEX"
	OracleFeed     string          `json:"oracle_feed" db:"oracle_feed"`
	TickSize       decimal.Decimal `json:"tick_size" db:"tick_size"`
	ContractSize   decimal.Decimal `json:"contract_size" db:"contract_size"`
	MinMarginRatio decimal.Decimal `json:"min_margin_ratio" db:"min_margin_ratio"` // basis points
	SettlementType string          `json:"settlement_type" db:"settlement_type"`
}

// SpreadPosition is a two-leg paired position priced off the spread between
// two exclusive markets. Leg sizes are signed: positive long, negative short.
type SpreadPosition struct {
	ID          uint64          `json:"id" db:"id"`
	Trader      string          `json:"trader" db:"trader"`
	Leg1Market  ExclusiveMarket `json:"leg1_market" db:"leg1_market"`
	Leg2Market  ExclusiveMarket `json:"leg2_market" db:"leg2_market"`
	Leg1Size    decimal.Decimal `json:"leg1_size" db:"leg1_size"`
	Leg2Size    decimal.Decimal `json:"leg2_size" db:"leg2_size"`
	EntrySpread decimal.Decimal `json:"entry_spread" db:"entry_spread"` // leg1 − leg2 at open
	Margin      decimal.Decimal `json:"margin" db:"margin"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// EngineConfig holds the singleton engine parameters written once by
// initialize. The risk parameters follow the source defaults: 2000 bp
// maintenance margin, 5x max leverage, 10 bp protocol fee.
type EngineConfig struct {
	Admin             string          `json:"admin" db:"admin"`
	Oracle            string          `json:"oracle" db:"oracle"`
	MaintenanceMargin decimal.Decimal `json:"maintenance_margin" db:"maintenance_margin"` // basis points
	MaxLeverage       uint32          `json:"max_leverage" db:"max_leverage"`
	ProtocolFee       decimal.Decimal `json:"protocol_fee" db:"protocol_fee"` // basis points, reserved
}

// DefaultEngineConfig returns the parameters initialize persists for a new
// deployment.
func DefaultEngineConfig(admin, oracle string) EngineConfig {
	return EngineConfig{
		Admin:             admin,
		Oracle:            oracle,
		MaintenanceMargin: decimal.NewFromInt(2000), // 20%
		MaxLeverage:       5,
		ProtocolFee:       decimal.NewFromInt(10), // 0.1%
	}
}
