package metrics

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"backtestapi/src/model"
	"backtestapi/src/utils"
)

const tradingDaysPerYear = 252

// Compute derives the headline performance numbers for a finished run.
// Ratios that are undefined for the series fall back to fixed
// sentinels: 0 for Sharpe without enough variance, 0 for Sortino
// without negative returns, 999 for profit factor without losses.
func Compute(initialCapital, finalCapital decimal.Decimal, curve []model.EquityCurvePoint, trades []model.Trade, skippedEntries int) *model.RunMetrics {
	m := &model.RunMetrics{
		TotalTrades:    len(trades),
		SkippedEntries: skippedEntries,
	}

	if !initialCapital.IsZero() {
		m.TotalReturn = finalCapital.Sub(initialCapital).Div(initialCapital).InexactFloat64()
	}
	m.CAGR = cagr(initialCapital, finalCapital, curve)
	m.MaxDrawdown = maxDrawdown(curve)

	returns := make([]float64, len(curve))
	for i, point := range curve {
		returns[i] = point.DailyReturn
	}
	m.SharpeRatio = sharpe(returns)
	m.SortinoRatio = sortino(returns)

	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	closed := 0
	for _, trade := range trades {
		if trade.IsOpen {
			m.OpenTrades++
			continue
		}
		closed++
		if trade.PnL == nil {
			continue
		}
		switch {
		case trade.PnL.IsPositive():
			m.WinningTrades++
			grossProfit = grossProfit.Add(*trade.PnL)
		case trade.PnL.IsNegative():
			m.LosingTrades++
			grossLoss = grossLoss.Add(trade.PnL.Neg())
		}
	}

	if closed > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(closed)
	}
	m.ProfitFactor = profitFactor(grossProfit, grossLoss)
	if m.WinningTrades > 0 {
		avg := grossProfit.Div(decimal.NewFromInt(int64(m.WinningTrades)))
		m.AvgWin = &avg
	}
	if m.LosingTrades > 0 {
		avg := grossLoss.Neg().Div(decimal.NewFromInt(int64(m.LosingTrades)))
		m.AvgLoss = &avg
	}

	return m
}

// cagr annualizes over calendar days between the first and last equity
// points. Runs spanning less than one day report 0.
func cagr(initialCapital, finalCapital decimal.Decimal, curve []model.EquityCurvePoint) float64 {
	if len(curve) < 2 || initialCapital.IsZero() {
		return 0
	}
	days := utils.CalendarDays(curve[0].Date, curve[len(curve)-1].Date)
	if days < 1 {
		return 0
	}
	ratio := finalCapital.Div(initialCapital).InexactFloat64()
	if ratio <= 0 {
		return -1
	}
	return math.Pow(ratio, 365.25/days) - 1
}

func maxDrawdown(curve []model.EquityCurvePoint) float64 {
	worst := 0.0
	for _, point := range curve {
		if point.Drawdown < worst {
			worst = point.Drawdown
		}
	}
	return worst
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	stdDev := stat.StdDev(returns, nil)
	if stdDev == 0 || math.IsNaN(stdDev) {
		return 0
	}
	return stat.Mean(returns, nil) / stdDev * math.Sqrt(tradingDaysPerYear)
}

// sortino penalizes only downside volatility. Without at least two
// negative daily returns the downside deviation is undefined and the
// ratio reports 0.
func sortino(returns []float64) float64 {
	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if len(negatives) < 2 {
		return 0
	}
	downside := stat.StdDev(negatives, nil)
	if downside == 0 || math.IsNaN(downside) {
		return 0
	}
	return stat.Mean(returns, nil) / downside * math.Sqrt(tradingDaysPerYear)
}

func profitFactor(grossProfit, grossLoss decimal.Decimal) float64 {
	if grossLoss.IsZero() {
		if grossProfit.IsPositive() {
			return 999
		}
		return 0
	}
	return grossProfit.Div(grossLoss).InexactFloat64()
}
