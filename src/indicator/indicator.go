package indicator

import "math"

// Series come back aligned to the input length, with NaN filling the
// warmup prefix. A NaN value means "not enough history yet" and must
// never be treated as a tradeable level downstream; use Defined to
// check before comparing.

// Defined reports whether an indicator value is usable.
func Defined(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the arithmetic mean of the trailing period values; NaN for the
// first period-1 positions.
func SMA(x []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		if i >= period {
			sum -= x[i-period]
		}
		out[i] = sum / float64(period)
	}
	return out
}

// EMA with smoothing 2/(period+1), seeded with SMA(period).
func EMA(x []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	if len(x) < period {
		return nanSlice(len(x))
	}
	out := make([]float64, len(x))
	k := 2.0 / float64(period+1)

	var seed float64
	for i := 0; i < period; i++ {
		seed += x[i]
	}
	seed /= float64(period)
	for i := 0; i < period-1; i++ {
		out[i] = math.NaN()
	}
	out[period-1] = seed
	for i := period; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// RSI implements Wilder's smoothing: the first average gain/loss is
// seeded over the first period deltas, after that
// avg = (avg*(period-1) + current) / period. By convention RSI is 100
// when the average loss is zero and 0 when the average gain is zero.
// NaN for the first period positions.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	if avgGain == 0 {
		return 0
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// RollingHigh is the highest value of the period bars preceding each
// position, the current bar excluded. Defined once period prior bars
// exist.
func RollingHigh(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 {
		return out
	}
	for i := period; i < len(x); i++ {
		m := x[i-period]
		for j := i - period + 1; j < i; j++ {
			if x[j] > m {
				m = x[j]
			}
		}
		out[i] = m
	}
	return out
}

// RollingLow mirrors RollingHigh for the window minimum.
func RollingLow(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 {
		return out
	}
	for i := period; i < len(x); i++ {
		m := x[i-period]
		for j := i - period + 1; j < i; j++ {
			if x[j] < m {
				m = x[j]
			}
		}
		out[i] = m
	}
	return out
}

// MACD returns the fast-minus-slow EMA difference and its signal line.
// The signal line smooths only the defined suffix of the MACD line so
// the NaN warmup stays aligned.
func MACD(closes []float64, fast, slow, signal int) (line, signalLine []float64) {
	line = make([]float64, len(closes))
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	for i := range closes {
		line[i] = emaFast[i] - emaSlow[i]
	}
	signalLine = emaTail(line, signal)
	return line, signalLine
}

func emaTail(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	start := 0
	for start < len(x) && math.IsNaN(x[start]) {
		start++
	}
	if start == len(x) {
		return out
	}
	copy(out[start:], EMA(x[start:], period))
	return out
}
