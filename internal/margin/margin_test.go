package margin

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/model"
)

// d is a test helper for creating decimals from int64.
func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func position(isLong bool, size, collateral, entry int64) *model.Position {
	return &model.Position{
		Owner:      "trader",
		Asset:      "BTC",
		IsLong:     isLong,
		Size:       d(size),
		Collateral: d(collateral),
		EntryPrice: d(entry),
		Leverage:   5,
	}
}

// --- PnL tests ---

func TestPnL_FlatPriceIsZero(t *testing.T) {
	for _, isLong := range []bool{true, false} {
		p := position(isLong, 1_000_000_000, 200_000_000, 50_000_000_000)
		pnl, remaining := PnL(p, d(50_000_000_000))
		if !pnl.IsZero() {
			t.Errorf("isLong=%v: expected zero pnl at entry price, got %s", isLong, pnl)
		}
		if !remaining.Equal(p.Collateral) {
			t.Errorf("isLong=%v: expected full collateral %s, got %s", isLong, p.Collateral, remaining)
		}
	}
}

func TestPnL_LongGainShortLoss(t *testing.T) {
	// 10% price rise on a $100 notional: pnl is +/-10% of size.
	long := position(true, 1_000_000_000, 200_000_000, 50_000_000_000)
	short := position(false, 1_000_000_000, 200_000_000, 50_000_000_000)
	current := d(55_000_000_000)

	pnl, remaining := PnL(long, current)
	if !pnl.Equal(d(100_000_000)) {
		t.Errorf("long pnl: expected 100000000, got %s", pnl)
	}
	if !remaining.Equal(d(300_000_000)) {
		t.Errorf("long remaining: expected 300000000, got %s", remaining)
	}

	pnl, remaining = PnL(short, current)
	if !pnl.Equal(d(-100_000_000)) {
		t.Errorf("short pnl: expected -100000000, got %s", pnl)
	}
	if !remaining.Equal(d(100_000_000)) {
		t.Errorf("short remaining: expected 100000000, got %s", remaining)
	}
}

func TestPnL_Deterministic(t *testing.T) {
	p := position(true, 1_000_000_000, 200_000_000, 50_000_000_000)
	current := d(47_123_456_789)

	pnl1, rem1 := PnL(p, current)
	pnl2, rem2 := PnL(p, current)
	if !pnl1.Equal(pnl2) || !rem1.Equal(rem2) {
		t.Errorf("PnL not deterministic: (%s,%s) vs (%s,%s)", pnl1, rem1, pnl2, rem2)
	}
}

func TestPnL_TruncatesTowardZero(t *testing.T) {
	// (2-3)*10/3 = -10/3: integer division truncates to -3, not -4.
	p := position(true, 10, 100, 3)
	pnl, remaining := PnL(p, d(2))
	if !pnl.Equal(d(-3)) {
		t.Errorf("expected truncation toward zero (-3), got %s", pnl)
	}
	if !remaining.Equal(d(97)) {
		t.Errorf("expected remaining 97, got %s", remaining)
	}
}

func TestPnL_CollateralFloorsAtZero(t *testing.T) {
	// 60% crash against 5x leverage: loss exceeds collateral.
	p := position(true, 1_000_000_000, 200_000_000, 50_000_000_000)
	pnl, remaining := PnL(p, d(20_000_000_000))

	if !pnl.Equal(d(-600_000_000)) {
		t.Errorf("expected pnl -600000000, got %s", pnl)
	}
	if !remaining.IsZero() {
		t.Errorf("remaining collateral must floor at zero, got %s", remaining)
	}
}

// --- Margin ratio tests ---

func TestRatio_FullAtEntryPrice(t *testing.T) {
	// Collateral equal to 20% of notional at the entry price: 2000 bp.
	p := position(true, 1_000_000_000, 200_000_000, 50_000_000_000)
	ratio := Ratio(p, d(50_000_000_000))
	if !ratio.Equal(d(2000)) {
		t.Errorf("expected ratio 2000 bp, got %s", ratio)
	}
}

func TestRatio_Truncated(t *testing.T) {
	// positionValue 1.1e9, remaining 3e8 → 2727.27... bp truncated to 2727.
	p := position(true, 1_000_000_000, 200_000_000, 50_000_000_000)
	ratio := Ratio(p, d(55_000_000_000))
	if !ratio.Equal(d(2727)) {
		t.Errorf("expected ratio 2727 bp, got %s", ratio)
	}
}

func TestRatio_ZeroPositionValue(t *testing.T) {
	// size * current / entry truncates to 0 for a dust position.
	p := position(true, 1, 100, 10_000_000)
	ratio := Ratio(p, d(5))
	if !ratio.IsZero() {
		t.Errorf("expected zero ratio for zero position value, got %s", ratio)
	}
}

// --- Liquidation / risk tests ---

func TestLiquidationPenalty_FivePercentOfCollateral(t *testing.T) {
	p := position(true, 1_000_000_000, 200_000_000, 50_000_000_000)
	penalty := LiquidationPenalty(p)
	if !penalty.Equal(d(10_000_000)) {
		t.Errorf("expected penalty 10000000, got %s", penalty)
	}
}

func TestLiquidatable_Boundary(t *testing.T) {
	maintenance := d(2000)
	p := position(true, 1_000_000_000, 200_000_000, 50_000_000_000)

	tests := []struct {
		name    string
		current int64
		want    bool
	}{
		{"healthy at entry", 50_000_000_000, false},
		{"profit", 55_000_000_000, false},
		{"deep loss", 42_000_000_000, true},
		{"total loss", 20_000_000_000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Liquidatable(p, d(tt.current), maintenance)
			if got != tt.want {
				t.Errorf("Liquidatable at %d = %v, want %v (ratio %s)",
					tt.current, got, tt.want, Ratio(p, d(tt.current)))
			}
		})
	}
}

func TestAtRisk_WarningBandAheadOfLiquidation(t *testing.T) {
	maintenance := d(2000) // warning band below 3000 bp
	p := position(true, 1_000_000_000, 200_000_000, 50_000_000_000)

	// Ratio 2727: inside the warning band but not yet liquidatable.
	current := d(55_000_000_000)
	if !AtRisk(p, current, maintenance) {
		t.Errorf("expected at-risk at ratio %s", Ratio(p, current))
	}
	if Liquidatable(p, current, maintenance) {
		t.Errorf("must not be liquidatable at ratio %s", Ratio(p, current))
	}
}

// --- Collateral requirement tests ---

func TestRequiredCollateral_TruncatesDown(t *testing.T) {
	tests := []struct {
		size     int64
		leverage uint32
		want     int64
	}{
		{1_000_000_000, 5, 200_000_000},
		{1_000_000_000, 3, 333_333_333}, // rounds down, slightly permissive
		{10, 3, 3},
	}
	for _, tt := range tests {
		got := RequiredCollateral(d(tt.size), tt.leverage)
		if !got.Equal(d(tt.want)) {
			t.Errorf("RequiredCollateral(%d, %d) = %s, want %d", tt.size, tt.leverage, got, tt.want)
		}
	}
}

// --- Spread math tests ---

func TestSpreadLegRequirement(t *testing.T) {
	cfg := &model.ExclusiveDerivative{
		Market:         model.MarketWTI,
		ContractSize:   d(1000),
		MinMarginRatio: d(500),
	}

	// 1000 contracts * 1000 size * 500 bp / 10000 = 50000, sign-independent.
	for _, legSize := range []int64{1000, -1000} {
		got := SpreadLegRequirement(d(legSize), cfg)
		if !got.Equal(d(50_000)) {
			t.Errorf("SpreadLegRequirement(%d) = %s, want 50000", legSize, got)
		}
	}
}

func TestSpreadPnL(t *testing.T) {
	sp := &model.SpreadPosition{
		Leg1Size:    d(1000),
		Leg2Size:    d(-1000),
		EntrySpread: d(-400_000_000_000),
	}

	// Unchanged spread: zero pnl.
	if pnl := SpreadPnL(sp, d(-400_000_000_000)); !pnl.IsZero() {
		t.Errorf("expected zero pnl on unchanged spread, got %s", pnl)
	}

	// Spread narrows by 100: leg1 is long the spread, gains 100*1000.
	if pnl := SpreadPnL(sp, d(-399_999_999_900)); !pnl.Equal(d(100_000)) {
		t.Errorf("expected pnl 100000, got %s", pnl)
	}

	// Spread widens: symmetric loss.
	if pnl := SpreadPnL(sp, d(-400_000_000_100)); !pnl.Equal(d(-100_000)) {
		t.Errorf("expected pnl -100000, got %s", pnl)
	}
}
