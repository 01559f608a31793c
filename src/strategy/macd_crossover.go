package strategy

import (
	"backtestapi/src/indicator"
	"backtestapi/src/model"
)

// macdCrossover enters long when the MACD line crosses above its
// signal line and exits on the reverse cross.
type macdCrossover struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

func (g *macdCrossover) Signals(bars []model.PriceBar) []Signal {
	line, signalLine := indicator.MACD(closes(bars), g.fastPeriod, g.slowPeriod, g.signalPeriod)

	out := make([]Signal, len(bars))
	inLong := false
	for i := range bars {
		out[i] = SignalNone
		if i == 0 || !indicator.Defined(line[i-1], signalLine[i-1], line[i], signalLine[i]) {
			continue
		}

		crossUp := line[i-1] <= signalLine[i-1] && line[i] > signalLine[i]
		crossDown := line[i-1] >= signalLine[i-1] && line[i] < signalLine[i]
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
