package strategy

import (
	"backtestapi/src/indicator"
	"backtestapi/src/model"
)

// channelBreakout enters long when the close exceeds the rolling high
// of the prior period bars (current bar excluded from the window) and
// exits when the close falls below the rolling low of the same window.
type channelBreakout struct {
	period int
}

func (g *channelBreakout) Signals(bars []model.PriceBar) []Signal {
	c := closes(bars)
	hi := indicator.RollingHigh(highs(bars), g.period)
	lo := indicator.RollingLow(lows(bars), g.period)

	out := make([]Signal, len(bars))
	inLong := false
	for i := range bars {
		out[i] = SignalNone

		switch {
		case !inLong && indicator.Defined(hi[i]) && c[i] > hi[i]:
			out[i] = SignalEnterLong
			inLong = true
		case inLong && indicator.Defined(lo[i]) && c[i] < lo[i]:
			out[i] = SignalExitLong
			inLong = false
		}
	}
	return out
}
