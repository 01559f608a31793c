package simulator

import "github.com/shopspring/decimal"

// Ledger is the run-scoped shared capital pool. Only the portfolio day
// loop touches it, advancing symbols in a fixed order, so parallel
// symbol workers never observe it. Cash can reach zero but never goes
// negative through sizing; exits credit it back the same day, before
// any entry pass runs.
type Ledger struct {
	cash decimal.Decimal
}

func NewLedger(initial decimal.Decimal) *Ledger {
	return &Ledger{cash: initial}
}

func (l *Ledger) Cash() decimal.Decimal {
	return l.cash
}

func (l *Ledger) Credit(amount decimal.Decimal) {
	l.cash = l.cash.Add(amount)
}

func (l *Ledger) Debit(amount decimal.Decimal) {
	l.cash = l.cash.Sub(amount)
}
