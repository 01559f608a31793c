package strategy

import (
	"backtestapi/src/indicator"
	"backtestapi/src/model"
)

// rsiThreshold's entry contract: ENTER_LONG on the bar where RSI
// crosses below oversold (prior bar at or above it, current bar below),
// EXIT_LONG on the bar where RSI crosses up through exitLevel. Cross
// semantics keep a multi-day dip from emitting more than one entry.
// The overbought parameter bounds validation only.
type rsiThreshold struct {
	period    int
	oversold  float64
	exitLevel float64
}

func (g *rsiThreshold) Signals(bars []model.PriceBar) []Signal {
	rsi := indicator.RSI(closes(bars), g.period)

	out := make([]Signal, len(bars))
	inLong := false
	for i := range bars {
		out[i] = SignalNone
		if i == 0 || !indicator.Defined(rsi[i-1], rsi[i]) {
			continue
		}

		switch {
		case !inLong && rsi[i-1] >= g.oversold && rsi[i] < g.oversold:
			out[i] = SignalEnterLong
			inLong = true
		case inLong && rsi[i-1] < g.exitLevel && rsi[i] >= g.exitLevel:
			out[i] = SignalExitLong
			inLong = false
		}
	}
	return out
}
