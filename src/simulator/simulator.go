package simulator

import (
	"time"

	"github.com/shopspring/decimal"

	"backtestapi/src/model"
	"backtestapi/src/risk"
	"backtestapi/src/strategy"
	"backtestapi/src/utils"
)

var one = decimal.NewFromInt(1)

// position is the transient open-position state for one symbol. It
// exists only while the simulation runs and is never persisted; the
// Trade record carries everything that outlives it.
type position struct {
	side   string
	entry  decimal.Decimal
	qty    decimal.Decimal
	stop   *decimal.Decimal
	target *decimal.Decimal
	trade  *model.Trade
}

// Simulator owns one symbol's FLAT -> OPEN -> FLAT state machine. The
// portfolio day loop drives it through BeginDay / ApplyExits /
// ApplyEntries / EndDay; the exits pass of every symbol runs before any
// entry pass, which is what makes freed cash available to same-day
// entries and keeps stops from firing on the entry day itself (entries
// fill at the close).
type Simulator struct {
	runID   string
	symbol  string
	cfg     model.StrategyConfig
	bars    []model.PriceBar
	signals []strategy.Signal
	feeFrac decimal.Decimal

	idx         int
	active      bool
	closedToday bool
	lastClose   decimal.Decimal
	pos         *position

	trades  []*model.Trade
	skipped []model.SkippedEntry
}

// New builds a simulator over one symbol's ascending bars and the
// signal stream aligned with them. commissionBps is the per-side fee in
// basis points of notional.
func New(runID, symbol string, cfg model.StrategyConfig, bars []model.PriceBar, signals []strategy.Signal, commissionBps decimal.Decimal) *Simulator {
	return &Simulator{
		runID:   runID,
		symbol:  symbol,
		cfg:     cfg,
		bars:    bars,
		signals: signals,
		feeFrac: commissionBps.Div(decimal.NewFromInt(10000)),
	}
}

func (s *Simulator) Symbol() string {
	return s.symbol
}

// BarDates exposes the symbol's trading days for calendar union.
func (s *Simulator) BarDates() []time.Time {
	dates := make([]time.Time, len(s.bars))
	for i, b := range s.bars {
		dates[i] = b.Date
	}
	return dates
}

// BeginDay aligns the simulator with the calendar day. A symbol without
// a bar that day stays inactive and just carries its last mark.
func (s *Simulator) BeginDay(day time.Time) {
	s.active = s.idx < len(s.bars) && utils.SameTradingDay(s.bars[s.idx].Date, day)
}

// EndDay consumes the day's bar and clears the same-day re-entry block.
func (s *Simulator) EndDay() {
	if s.active {
		s.lastClose = s.bars[s.idx].Close
		s.idx++
	}
	s.active = false
	s.closedToday = false
}

// MarkValue is the current mark-to-market value of the open position:
// qty x close for longs, -qty x close for shorts, zero when flat.
func (s *Simulator) MarkValue() decimal.Decimal {
	if s.pos == nil {
		return decimal.Zero
	}
	mark := s.lastClose
	if s.active {
		mark = s.bars[s.idx].Close
	}
	value := s.pos.qty.Mul(mark)
	if s.pos.side == model.SideShort {
		return value.Neg()
	}
	return value
}

// ApplyExits checks, in priority order, the stop, the target and the
// strategy exit signal. The stop wins a same-day tie with the target.
func (s *Simulator) ApplyExits(ledger *Ledger) {
	if !s.active || s.pos == nil {
		return
	}
	bar := s.bars[s.idx]
	pos := s.pos

	if pos.stop != nil && stopHit(pos.side, bar, *pos.stop) {
		s.closeAt(ledger, bar.Date, *pos.stop, model.ExitStopLoss)
		return
	}
	if pos.target != nil && targetHit(pos.side, bar, *pos.target) {
		s.closeAt(ledger, bar.Date, *pos.target, model.ExitTakeProfit)
		return
	}

	sig := s.signals[s.idx]
	if (pos.side == model.SideLong && sig == strategy.SignalExitLong) ||
		(pos.side == model.SideShort && sig == strategy.SignalExitShort) {
		s.closeAt(ledger, bar.Date, bar.Close, model.ExitStrategy)
	}
}

func stopHit(side string, bar model.PriceBar, stop decimal.Decimal) bool {
	if side == model.SideShort {
		return bar.High.GreaterThanOrEqual(stop)
	}
	return bar.Low.LessThanOrEqual(stop)
}

func targetHit(side string, bar model.PriceBar, target decimal.Decimal) bool {
	if side == model.SideShort {
		return bar.Low.LessThanOrEqual(target)
	}
	return bar.High.GreaterThanOrEqual(target)
}

// ApplyEntries opens a position on an entry signal, sized against the
// shared ledger. currentCapital is the portfolio's pooled cash plus all
// open position marks, which percent sizing works from. An entry that
// cannot afford a single share becomes a SkippedEntry. Entries are
// ignored while a position is open and on the day a position closed.
func (s *Simulator) ApplyEntries(ledger *Ledger, currentCapital decimal.Decimal) {
	if !s.active || s.pos != nil || s.closedToday {
		return
	}

	sig := s.signals[s.idx]
	var side, entryLabel string
	switch sig {
	case strategy.SignalEnterLong:
		side, entryLabel = model.SideLong, model.SignalEnterLong
	case strategy.SignalEnterShort:
		side, entryLabel = model.SideShort, model.SignalEnterShort
	default:
		return
	}

	bar := s.bars[s.idx]
	price := bar.Close
	alloc := risk.Allocation(s.cfg.PositionSizing, currentCapital)

	// sized at the fee-inclusive price so the entry cost fits both the
	// allocation and available cash; for shorts the cash bound acts as
	// the collateral requirement
	qty := risk.Quantity(alloc, ledger.Cash(), price.Mul(one.Add(s.feeFrac)))
	if !qty.IsPositive() {
		s.skipped = append(s.skipped, model.SkippedEntry{
			RunID:  s.runID,
			Symbol: s.symbol,
			Date:   bar.Date,
			Side:   side,
			Signal: entryLabel,
			Reason: model.SkipReasonInsufficientCapital,
		})
		return
	}

	notional := qty.Mul(price)
	fee := notional.Mul(s.feeFrac)
	if side == model.SideShort {
		ledger.Credit(notional.Sub(fee))
	} else {
		ledger.Debit(notional.Add(fee))
	}

	trade := &model.Trade{
		RunID:       s.runID,
		Symbol:      s.symbol,
		Side:        side,
		EntryDate:   bar.Date,
		EntryPrice:  price,
		Quantity:    qty,
		EntrySignal: entryLabel,
		Fees:        fee,
		IsOpen:      true,
	}
	s.trades = append(s.trades, trade)
	s.pos = &position{
		side:   side,
		entry:  price,
		qty:    qty,
		stop:   risk.StopPrice(side, price, s.cfg.StopLossPct),
		target: risk.TargetPrice(side, price, s.cfg.TakeProfitPct),
		trade:  trade,
	}
}

func (s *Simulator) closeAt(ledger *Ledger, date time.Time, price decimal.Decimal, exitLabel string) {
	pos := s.pos
	notional := pos.qty.Mul(price)
	fee := notional.Mul(s.feeFrac)

	if pos.side == model.SideShort {
		ledger.Debit(notional.Add(fee))
	} else {
		ledger.Credit(notional.Sub(fee))
	}

	trade := pos.trade
	exitDate := date
	exitPrice := price
	trade.ExitDate = &exitDate
	trade.ExitPrice = &exitPrice
	trade.ExitSignal = exitLabel
	trade.Fees = trade.Fees.Add(fee)
	trade.IsOpen = false

	gross := exitPrice.Sub(pos.entry).Mul(pos.qty)
	ret := exitPrice.Sub(pos.entry).Div(pos.entry).InexactFloat64()
	if pos.side == model.SideShort {
		gross = gross.Neg()
		ret = -ret
	}
	pnl := gross.Sub(trade.Fees)
	trade.PnL = &pnl
	trade.ReturnPct = &ret

	s.pos = nil
	s.closedToday = true
}

// Trades returns the symbol's ledger of closed and still-open trades in
// entry order.
func (s *Simulator) Trades() []model.Trade {
	out := make([]model.Trade, 0, len(s.trades))
	for _, t := range s.trades {
		out = append(out, *t)
	}
	return out
}

// Skipped returns the capital-exhaustion records in date order.
func (s *Simulator) Skipped() []model.SkippedEntry {
	return s.skipped
}
