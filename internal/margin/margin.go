// Package margin implements the risk arithmetic for leveraged positions:
// profit-and-loss, margin ratio, liquidation penalty, and collateral
// requirements.
//
// All functions are pure — positions and prices are passed as arguments,
// nothing is stored. All monetary values use shopspring/decimal — never
// float64 for money. Division truncates toward zero to match the fixed-point
// integer arithmetic of the on-chain ledger this engine settles against:
// size, collateral, and prices share the same 1e7 scale, so PnL computed
// relative to the entry price is expressed in collateral units.
package margin

import (
	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/model"
)

var (
	// BasisPoints is the margin-ratio denominator: 10000 bp = 100%.
	BasisPoints = decimal.NewFromInt(10000)

	// penaltyNum/penaltyDen set the flat liquidation penalty at 5% of the
	// original collateral (not of remaining equity).
	penaltyNum = decimal.NewFromInt(5)
	penaltyDen = decimal.NewFromInt(100)

	// atRiskNum/atRiskDen place the warning band at 1.5x the maintenance
	// margin.
	atRiskNum = decimal.NewFromInt(150)
	atRiskDen = decimal.NewFromInt(100)
)

// divTrunc divides a by b with the quotient truncated toward zero, matching
// integer division of the fixed-point representation.
func divTrunc(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, 0)
	return q
}

// PnL computes profit-and-loss and remaining collateral for a position at
// the given current price:
//
//	priceDiff = long ? current − entry : entry − current
//	pnl       = priceDiff * size / entryPrice   (truncated)
//
// Remaining collateral is floored at zero: the trader never owes more than
// the posted collateral, the protocol absorbs downside past total loss.
func PnL(p *model.Position, currentPrice decimal.Decimal) (pnl, remainingCollateral decimal.Decimal) {
	priceDiff := currentPrice.Sub(p.EntryPrice)
	if !p.IsLong {
		priceDiff = p.EntryPrice.Sub(currentPrice)
	}

	pnl = divTrunc(priceDiff.Mul(p.Size), p.EntryPrice)

	remainingCollateral = p.Collateral.Add(pnl)
	if remainingCollateral.IsNegative() {
		remainingCollateral = decimal.Zero
	}
	return pnl, remainingCollateral
}

// Ratio computes the live margin ratio in basis points:
//
//	positionValue = size * currentPrice / entryPrice   (truncated)
//	ratio         = remainingCollateral * 10000 / positionValue
//
// A zero position value yields a zero ratio.
func Ratio(p *model.Position, currentPrice decimal.Decimal) decimal.Decimal {
	_, remaining := PnL(p, currentPrice)

	positionValue := divTrunc(p.Size.Mul(currentPrice), p.EntryPrice)
	if positionValue.IsZero() {
		return decimal.Zero
	}

	return divTrunc(remaining.Mul(BasisPoints), positionValue)
}

// LiquidationPenalty returns the flat 5% penalty applied to the original
// collateral when a position is force-liquidated.
func LiquidationPenalty(p *model.Position) decimal.Decimal {
	return divTrunc(p.Collateral.Mul(penaltyNum), penaltyDen)
}

// AtRisk reports whether the position's margin ratio has fallen into the
// warning band, 1.5x the maintenance margin. Liquidation itself only
// triggers below the maintenance margin; this flags positions approaching it.
func AtRisk(p *model.Position, currentPrice, maintenanceMargin decimal.Decimal) bool {
	ratio := Ratio(p, currentPrice)
	threshold := divTrunc(maintenanceMargin.Mul(atRiskNum), atRiskDen)
	return ratio.LessThan(threshold)
}

// Liquidatable reports whether the position may be force-liquidated: strictly
// below the maintenance margin.
func Liquidatable(p *model.Position, currentPrice, maintenanceMargin decimal.Decimal) bool {
	return Ratio(p, currentPrice).LessThan(maintenanceMargin)
}

// RequiredCollateral returns the minimum collateral for a notional size at a
// given leverage: size / leverage, truncated. Truncation rounds the
// requirement down, making the check slightly more permissive than exact
// linear leverage.
func RequiredCollateral(size decimal.Decimal, leverage uint32) decimal.Decimal {
	return divTrunc(size, decimal.NewFromInt(int64(leverage)))
}

// SpreadLegRequirement returns the minimum margin one leg of a spread
// position contributes: |legSize| * contractSize * minMarginRatio / 10000,
// truncated.
func SpreadLegRequirement(legSize decimal.Decimal, cfg *model.ExclusiveDerivative) decimal.Decimal {
	return divTrunc(legSize.Abs().Mul(cfg.ContractSize).Mul(cfg.MinMarginRatio), BasisPoints)
}

// SpreadPnL computes the profit-and-loss of a spread position at the given
// exit spread. The spread is treated as a single synthetic instrument whose
// size is leg1's size:
//
//	pnl = (exitSpread − entrySpread) * leg1Size
func SpreadPnL(sp *model.SpreadPosition, exitSpread decimal.Decimal) decimal.Decimal {
	return exitSpread.Sub(sp.EntrySpread).Mul(sp.Leg1Size)
}
