package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"backtestapi/src/model"
	"backtestapi/src/simulator"
	"backtestapi/src/strategy"
	"backtestapi/src/utils"
)

// Result is the raw outcome of a portfolio walk: closed and still-open
// trades, one equity point per trading day, and the entries that could
// not be funded.
type Result struct {
	Trades       []model.Trade
	EquityCurve  []model.EquityCurvePoint
	Skipped      []model.SkippedEntry
	FinalCapital decimal.Decimal
}

// Run walks every symbol over the union of their trading calendars
// against a single shared cash ledger. Each day all exits are applied
// first, in ascending symbol order, then all entries, so cash freed by
// an exit is available to entries on the same day and the order of
// fills is deterministic. Cancellation is honored between days, never
// inside one.
func Run(ctx context.Context, runID string, cfg model.StrategyConfig, bars map[string][]model.PriceBar, signals map[string][]strategy.Signal, initialCapital, commissionBps decimal.Decimal) (*Result, error) {
	symbols := make([]string, 0, len(bars))
	for symbol := range bars {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	sims := make([]*simulator.Simulator, 0, len(symbols))
	dateSets := make([][]time.Time, 0, len(symbols))
	for _, symbol := range symbols {
		symbolSignals, ok := signals[symbol]
		if !ok || len(symbolSignals) != len(bars[symbol]) {
			return nil, fmt.Errorf("signal series for %s does not match its bars", symbol)
		}
		sim := simulator.New(runID, symbol, cfg, bars[symbol], symbolSignals, commissionBps)
		sims = append(sims, sim)
		dateSets = append(dateSets, sim.BarDates())
	}

	calendar := utils.UnionCalendar(dateSets...)

	ledger := simulator.NewLedger(initialCapital)
	curve := make([]model.EquityCurvePoint, 0, len(calendar))
	prevEquity := initialCapital
	peak := initialCapital

	for _, day := range calendar {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, sim := range sims {
			sim.BeginDay(day)
		}
		for _, sim := range sims {
			sim.ApplyExits(ledger)
		}

		capital := ledger.Cash()
		for _, sim := range sims {
			capital = capital.Add(sim.MarkValue())
		}
		for _, sim := range sims {
			sim.ApplyEntries(ledger, capital)
		}

		positionsValue := decimal.Zero
		for _, sim := range sims {
			positionsValue = positionsValue.Add(sim.MarkValue())
		}
		equity := ledger.Cash().Add(positionsValue)

		dailyReturn := 0.0
		if !prevEquity.IsZero() {
			dailyReturn = equity.Sub(prevEquity).Div(prevEquity).InexactFloat64()
		}
		if equity.GreaterThan(peak) {
			peak = equity
		}
		drawdown := 0.0
		if !peak.IsZero() {
			drawdown = equity.Div(peak).InexactFloat64() - 1
		}

		curve = append(curve, model.EquityCurvePoint{
			RunID:          runID,
			Date:           day,
			Equity:         equity,
			Cash:           ledger.Cash(),
			PositionsValue: positionsValue,
			DailyReturn:    dailyReturn,
			Drawdown:       drawdown,
		})
		prevEquity = equity

		for _, sim := range sims {
			sim.EndDay()
		}
	}

	result := &Result{
		EquityCurve:  curve,
		FinalCapital: initialCapital,
	}
	if len(curve) > 0 {
		result.FinalCapital = curve[len(curve)-1].Equity
	}

	for _, sim := range sims {
		result.Trades = append(result.Trades, sim.Trades()...)
		result.Skipped = append(result.Skipped, sim.Skipped()...)
	}
	sort.SliceStable(result.Trades, func(i, j int) bool {
		if !result.Trades[i].EntryDate.Equal(result.Trades[j].EntryDate) {
			return result.Trades[i].EntryDate.Before(result.Trades[j].EntryDate)
		}
		return result.Trades[i].Symbol < result.Trades[j].Symbol
	})
	sort.SliceStable(result.Skipped, func(i, j int) bool {
		if !result.Skipped[i].Date.Equal(result.Skipped[j].Date) {
			return result.Skipped[i].Date.Before(result.Skipped[j].Date)
		}
		return result.Skipped[i].Symbol < result.Skipped[j].Symbol
	})

	return result, nil
}
