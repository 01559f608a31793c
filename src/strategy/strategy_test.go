package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtestapi/src/model"
)

func barsFromCloses(symbol string, closes ...float64) []model.PriceBar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]model.PriceBar, len(closes))
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		bars[i] = model.PriceBar{
			Symbol: symbol,
			Date:   start.AddDate(0, 0, i),
			Open:   d,
			High:   d,
			Low:    d,
			Close:  d,
			Volume: decimal.NewFromInt(1000),
		}
	}
	return bars
}

func sizingFixed(v string) model.PositionSizing {
	return model.PositionSizing{Mode: model.SizingFixed, Value: decimal.RequireFromString(v)}
}

func emitted(signals []Signal) []Signal {
	var out []Signal
	for _, s := range signals {
		if s != SignalNone {
			out = append(out, s)
		}
	}
	return out
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     model.StrategyConfig
		wantErr string
	}{
		{
			name: "valid crossover",
			cfg: model.StrategyConfig{
				Type:           model.StrategyMovingAverageCrossover,
				Params:         map[string]float64{"fastPeriod": 10, "slowPeriod": 30},
				PositionSizing: sizingFixed("10000"),
			},
		},
		{
			name: "fast period not below slow",
			cfg: model.StrategyConfig{
				Type:           model.StrategyMovingAverageCrossover,
				Params:         map[string]float64{"fastPeriod": 30, "slowPeriod": 30},
				PositionSizing: sizingFixed("10000"),
			},
			wantErr: "fastPeriod must be less than slowPeriod",
		},
		{
			name: "fractional period",
			cfg: model.StrategyConfig{
				Type:           model.StrategyMovingAverageCrossover,
				Params:         map[string]float64{"fastPeriod": 2.5, "slowPeriod": 30},
				PositionSizing: sizingFixed("10000"),
			},
			wantErr: "whole number",
		},
		{
			name: "unknown strategy type",
			cfg: model.StrategyConfig{
				Type:           "mean-reversion-deluxe",
				Params:         map[string]float64{},
				PositionSizing: sizingFixed("10000"),
			},
			wantErr: "unknown strategy type",
		},
		{
			name: "missing parameter",
			cfg: model.StrategyConfig{
				Type:           model.StrategyRSIThreshold,
				Params:         map[string]float64{"period": 14, "oversold": 30},
				PositionSizing: sizingFixed("10000"),
			},
			wantErr: `missing parameter "overbought"`,
		},
		{
			name: "unknown parameter rejected",
			cfg: model.StrategyConfig{
				Type:           model.StrategyChannelBreakout,
				Params:         map[string]float64{"period": 20, "lookahead": 5},
				PositionSizing: sizingFixed("10000"),
			},
			wantErr: `unknown parameter "lookahead"`,
		},
		{
			name: "rsi levels out of order",
			cfg: model.StrategyConfig{
				Type:           model.StrategyRSIThreshold,
				Params:         map[string]float64{"period": 14, "oversold": 60, "overbought": 70, "exitLevel": 50},
				PositionSizing: sizingFixed("10000"),
			},
			wantErr: "oversold < exitLevel <= overbought",
		},
		{
			name: "percent sizing above 100",
			cfg: model.StrategyConfig{
				Type:           model.StrategyChannelBreakout,
				Params:         map[string]float64{"period": 20},
				PositionSizing: model.PositionSizing{Mode: model.SizingPercent, Value: decimal.RequireFromString("150")},
			},
			wantErr: "percent position sizing",
		},
		{
			name: "unknown sizing mode",
			cfg: model.StrategyConfig{
				Type:           model.StrategyChannelBreakout,
				Params:         map[string]float64{"period": 20},
				PositionSizing: model.PositionSizing{Mode: "kelly", Value: decimal.RequireFromString("1")},
			},
			wantErr: "unknown position sizing mode",
		},
		{
			name: "stop loss out of range",
			cfg: model.StrategyConfig{
				Type:           model.StrategyChannelBreakout,
				Params:         map[string]float64{"period": 20},
				PositionSizing: sizingFixed("10000"),
				StopLossPct:    floatPtr(120),
			},
			wantErr: "stop_loss_pct",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestMACrossoverSignals(t *testing.T) {
	g, err := NewGenerator(model.StrategyConfig{
		Type:           model.StrategyMovingAverageCrossover,
		Params:         map[string]float64{"fastPeriod": 2, "slowPeriod": 3},
		PositionSizing: sizingFixed("10000"),
	})
	require.NoError(t, err)

	// SMA(2) crosses above SMA(3) at position 4 and back below at 7
	bars := barsFromCloses("AAPL", 10, 9, 8, 7, 10, 14, 9, 5)
	signals := g.Signals(bars)
	require.Len(t, signals, len(bars))

	assert.Equal(t, SignalEnterLong, signals[4])
	assert.Equal(t, SignalExitLong, signals[7])
	for i, s := range signals {
		if i == 4 || i == 7 {
			continue
		}
		assert.Equal(t, SignalNone, s, "position %d", i)
	}
}

// A dip below oversold that lasts several bars must produce exactly one
// entry, and the recovery through the exit level exactly one exit.
func TestRSIThresholdOneEntryOneExit(t *testing.T) {
	g, err := NewGenerator(model.StrategyConfig{
		Type:           model.StrategyRSIThreshold,
		Params:         map[string]float64{"period": 3, "oversold": 30, "overbought": 70},
		PositionSizing: sizingFixed("10000"),
	})
	require.NoError(t, err)

	// rises (RSI 100), sells off into the 20s, then recovers past 50
	bars := barsFromCloses("AAPL", 100, 102, 104, 106, 104, 101, 97, 99, 103, 108)
	got := emitted(g.Signals(bars))

	require.Equal(t, []Signal{SignalEnterLong, SignalExitLong}, got)
}

func TestChannelBreakoutSignals(t *testing.T) {
	g, err := NewGenerator(model.StrategyConfig{
		Type:           model.StrategyChannelBreakout,
		Params:         map[string]float64{"period": 2},
		PositionSizing: sizingFixed("10000"),
	})
	require.NoError(t, err)

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	mk := func(i int, high, low, close string) model.PriceBar {
		return model.PriceBar{
			Symbol: "MSFT",
			Date:   start.AddDate(0, 0, i),
			Open:   decimal.RequireFromString(close),
			High:   decimal.RequireFromString(high),
			Low:    decimal.RequireFromString(low),
			Close:  decimal.RequireFromString(close),
			Volume: decimal.NewFromInt(1000),
		}
	}
	bars := []model.PriceBar{
		mk(0, "10.5", "9.5", "10"),
		mk(1, "11.5", "10.5", "11"),
		mk(2, "12.5", "11.5", "12"), // close 12 > prior 2-bar high 11.5
		mk(3, "11", "10", "10"),     // close 10 < prior 2-bar low 10.5
	}

	signals := g.Signals(bars)
	assert.Equal(t, []Signal{SignalNone, SignalNone, SignalEnterLong, SignalExitLong}, signals)
}

func TestMACDCrossoverAlternates(t *testing.T) {
	g, err := NewGenerator(model.StrategyConfig{
		Type:           model.StrategyMACDCrossover,
		Params:         map[string]float64{"fastPeriod": 3, "slowPeriod": 6, "signalPeriod": 3},
		PositionSizing: sizingFixed("10000"),
	})
	require.NoError(t, err)

	closes := []float64{
		20, 19, 18, 17, 16, 15, 14, 13, 12, 11,
		12, 13, 15, 17, 19, 21, 23, 25, 26, 27,
		26, 24, 22, 20, 18, 16, 14, 13, 12, 11,
	}
	got := emitted(g.Signals(barsFromCloses("NVDA", closes...)))

	require.NotEmpty(t, got)
	assert.Equal(t, SignalEnterLong, got[0])
	for i, s := range got {
		if i%2 == 0 {
			assert.Equal(t, SignalEnterLong, s, "signal %d", i)
		} else {
			assert.Equal(t, SignalExitLong, s, "signal %d", i)
		}
	}
}

func TestMinBars(t *testing.T) {
	tests := []struct {
		cfg  model.StrategyConfig
		want int
	}{
		{
			cfg: model.StrategyConfig{
				Type:   model.StrategyMovingAverageCrossover,
				Params: map[string]float64{"fastPeriod": 10, "slowPeriod": 30},
			},
			want: 31,
		},
		{
			cfg: model.StrategyConfig{
				Type:   model.StrategyRSIThreshold,
				Params: map[string]float64{"period": 14, "oversold": 30, "overbought": 70},
			},
			want: 16,
		},
		{
			cfg: model.StrategyConfig{
				Type:   model.StrategyChannelBreakout,
				Params: map[string]float64{"period": 20},
			},
			want: 21,
		},
		{
			cfg: model.StrategyConfig{
				Type:   model.StrategyMACDCrossover,
				Params: map[string]float64{"fastPeriod": 12, "slowPeriod": 26, "signalPeriod": 9},
			},
			want: 35,
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MinBars(tt.cfg), tt.cfg.Type)
	}
}

func TestNewGeneratorRejectsInvalidConfig(t *testing.T) {
	_, err := NewGenerator(model.StrategyConfig{
		Type:           model.StrategyMovingAverageCrossover,
		Params:         map[string]float64{"fastPeriod": 30, "slowPeriod": 10},
		PositionSizing: sizingFixed("10000"),
	})
	require.Error(t, err)
}
