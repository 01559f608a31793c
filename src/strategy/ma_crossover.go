package strategy

import (
	"backtestapi/src/indicator"
	"backtestapi/src/model"
)

// maCrossover enters long when the fast SMA crosses above the slow SMA
// (fast <= slow on the prior bar, fast > slow on the current one) and
// exits on the reverse cross. Undefined warmup values never cross.
type maCrossover struct {
	fastPeriod int
	slowPeriod int
}

func (g *maCrossover) Signals(bars []model.PriceBar) []Signal {
	c := closes(bars)
	fast := indicator.SMA(c, g.fastPeriod)
	slow := indicator.SMA(c, g.slowPeriod)

	out := make([]Signal, len(bars))
	inLong := false
	for i := range bars {
		out[i] = SignalNone
		if i == 0 || !indicator.Defined(fast[i-1], slow[i-1], fast[i], slow[i]) {
			continue
		}

		crossUp := fast[i-1] <= slow[i-1] && fast[i] > slow[i]
		crossDown := fast[i-1] >= slow[i-1] && fast[i] < slow[i]
		switch {
		case !inLong && crossUp:
			out[i] = SignalEnterLong
			inLong = true
		case inLong && crossDown:
			out[i] = SignalExitLong
			inLong = false
		}
	}
	return out
}
