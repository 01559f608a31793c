package risk

import (
	"github.com/shopspring/decimal"

	"backtestapi/src/model"
)

var hundred = decimal.NewFromInt(100)

// StopPrice returns the forced-exit stop level for a position entered
// at entry, or nil when no stop is configured. Longs stop below entry,
// shorts above.
func StopPrice(side string, entry decimal.Decimal, stopLossPct *float64) *decimal.Decimal {
	if stopLossPct == nil {
		return nil
	}
	frac := decimal.NewFromFloat(*stopLossPct).Div(hundred)

	var stop decimal.Decimal
	if side == model.SideShort {
		stop = entry.Mul(decimal.NewFromInt(1).Add(frac))
	} else {
		stop = entry.Mul(decimal.NewFromInt(1).Sub(frac))
	}
	return &stop
}

// TargetPrice returns the take-profit level, or nil when none is
// configured. Longs target above entry, shorts below.
func TargetPrice(side string, entry decimal.Decimal, takeProfitPct *float64) *decimal.Decimal {
	if takeProfitPct == nil {
		return nil
	}
	frac := decimal.NewFromFloat(*takeProfitPct).Div(hundred)

	var target decimal.Decimal
	if side == model.SideShort {
		target = entry.Mul(decimal.NewFromInt(1).Sub(frac))
	} else {
		target = entry.Mul(decimal.NewFromInt(1).Add(frac))
	}
	return &target
}

// Allocation converts the sizing rule into a capital amount for one
// entry. Percent mode sizes against current capital (pooled cash plus
// open position marks), fixed mode is the configured amount.
func Allocation(sizing model.PositionSizing, currentCapital decimal.Decimal) decimal.Decimal {
	if sizing.Mode == model.SizingPercent {
		return currentCapital.Mul(sizing.Value).Div(hundred)
	}
	return sizing.Value
}

// Quantity floors the affordable whole-share count for an entry. The
// allocation is clamped to the cash actually available; a result of
// zero means the entry must be skipped, not opened.
func Quantity(allocation, availableCash, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	spend := allocation
	if availableCash.LessThan(spend) {
		spend = availableCash
	}
	if !spend.IsPositive() {
		return decimal.Zero
	}
	return spend.Div(price).Floor()
}
