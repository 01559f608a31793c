package strategy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"backtestapi/src/model"
)

var hundred = decimal.NewFromInt(100)

// Signal is the per-day output of a generator for one symbol.
type Signal string

const (
	SignalNone       Signal = "NONE"
	SignalEnterLong  Signal = "ENTER_LONG"
	SignalExitLong   Signal = "EXIT_LONG"
	SignalEnterShort Signal = "ENTER_SHORT"
	SignalExitShort  Signal = "EXIT_SHORT"
)

// Generator turns one symbol's bar series into a per-day signal stream.
// The returned slice is aligned with the input bars. Generators track
// their own long/flat state so a persisting condition emits its entry
// exactly once; the position simulator independently ignores entries
// while in a position and exits while flat.
type Generator interface {
	Signals(bars []model.PriceBar) []Signal
}

// NewGenerator validates cfg and builds the generator for its type.
// Strategy dispatch is a tagged variant: the type string selects the
// implementation, params carry the type-specific payload.
func NewGenerator(cfg model.StrategyConfig) (Generator, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	p := cfg.Params
	switch cfg.Type {
	case model.StrategyMovingAverageCrossover:
		return &maCrossover{
			fastPeriod: int(p["fastPeriod"]),
			slowPeriod: int(p["slowPeriod"]),
		}, nil
	case model.StrategyRSIThreshold:
		exitLevel := float64(defaultRSIExitLevel)
		if v, ok := p["exitLevel"]; ok {
			exitLevel = v
		}
		return &rsiThreshold{
			period:    int(p["period"]),
			oversold:  p["oversold"],
			exitLevel: exitLevel,
		}, nil
	case model.StrategyChannelBreakout:
		return &channelBreakout{period: int(p["period"])}, nil
	case model.StrategyMACDCrossover:
		return &macdCrossover{
			fastPeriod:   int(p["fastPeriod"]),
			slowPeriod:   int(p["slowPeriod"]),
			signalPeriod: int(p["signalPeriod"]),
		}, nil
	}
	return nil, fmt.Errorf("unknown strategy type %q", cfg.Type)
}

// MinBars is the smallest bar count for which the strategy can emit a
// signal at all. A symbol with fewer bars in range has insufficient
// history.
func MinBars(cfg model.StrategyConfig) int {
	p := cfg.Params
	switch cfg.Type {
	case model.StrategyMovingAverageCrossover:
		return int(p["slowPeriod"]) + 1
	case model.StrategyRSIThreshold:
		return int(p["period"]) + 2
	case model.StrategyChannelBreakout:
		return int(p["period"]) + 1
	case model.StrategyMACDCrossover:
		return int(p["slowPeriod"]) + int(p["signalPeriod"])
	}
	return 0
}

const defaultRSIExitLevel = 50

var requiredParams = map[string][]string{
	model.StrategyMovingAverageCrossover: {"fastPeriod", "slowPeriod"},
	model.StrategyRSIThreshold:           {"period", "oversold", "overbought"},
	model.StrategyChannelBreakout:        {"period"},
	model.StrategyMACDCrossover:          {"fastPeriod", "slowPeriod", "signalPeriod"},
}

var optionalParams = map[string][]string{
	model.StrategyRSIThreshold: {"exitLevel"},
}

// ValidateConfig rejects anything the engine would not be able to run:
// unknown types, missing/unknown/malformed params, broken sizing or
// stop settings. Params must contain exactly the keys the type
// requires, plus any documented optional ones.
func ValidateConfig(cfg model.StrategyConfig) error {
	required, ok := requiredParams[cfg.Type]
	if !ok {
		return fmt.Errorf("unknown strategy type %q", cfg.Type)
	}

	allowed := make(map[string]bool, len(required))
	for _, k := range required {
		if _, present := cfg.Params[k]; !present {
			return fmt.Errorf("strategy %s: missing parameter %q", cfg.Type, k)
		}
		allowed[k] = true
	}
	for _, k := range optionalParams[cfg.Type] {
		allowed[k] = true
	}
	for k := range cfg.Params {
		if !allowed[k] {
			return fmt.Errorf("strategy %s: unknown parameter %q", cfg.Type, k)
		}
	}

	if err := validateTypeParams(cfg); err != nil {
		return err
	}
	if err := validateSizing(cfg.PositionSizing); err != nil {
		return err
	}
	if cfg.StopLossPct != nil && (*cfg.StopLossPct <= 0 || *cfg.StopLossPct >= 100) {
		return fmt.Errorf("stop_loss_pct must be between 0 and 100, got %v", *cfg.StopLossPct)
	}
	if cfg.TakeProfitPct != nil && *cfg.TakeProfitPct <= 0 {
		return fmt.Errorf("take_profit_pct must be positive, got %v", *cfg.TakeProfitPct)
	}
	return nil
}

func validateTypeParams(cfg model.StrategyConfig) error {
	p := cfg.Params
	switch cfg.Type {
	case model.StrategyMovingAverageCrossover:
		fast, err := wholePeriod(p, "fastPeriod")
		if err != nil {
			return err
		}
		slow, err := wholePeriod(p, "slowPeriod")
		if err != nil {
			return err
		}
		if fast >= slow {
			return fmt.Errorf("fastPeriod must be less than slowPeriod, got %d >= %d", fast, slow)
		}
	case model.StrategyRSIThreshold:
		period, err := wholePeriod(p, "period")
		if err != nil {
			return err
		}
		if period < 2 {
			return fmt.Errorf("period must be at least 2, got %d", period)
		}
		oversold, overbought := p["oversold"], p["overbought"]
		exitLevel := float64(defaultRSIExitLevel)
		if v, ok := p["exitLevel"]; ok {
			exitLevel = v
		}
		if oversold <= 0 || overbought >= 100 {
			return fmt.Errorf("oversold/overbought must be inside (0, 100), got %v/%v", oversold, overbought)
		}
		if !(oversold < exitLevel && exitLevel <= overbought) {
			return fmt.Errorf("levels must satisfy oversold < exitLevel <= overbought, got %v/%v/%v",
				oversold, exitLevel, overbought)
		}
	case model.StrategyChannelBreakout:
		if _, err := wholePeriod(p, "period"); err != nil {
			return err
		}
	case model.StrategyMACDCrossover:
		fast, err := wholePeriod(p, "fastPeriod")
		if err != nil {
			return err
		}
		slow, err := wholePeriod(p, "slowPeriod")
		if err != nil {
			return err
		}
		if _, err := wholePeriod(p, "signalPeriod"); err != nil {
			return err
		}
		if fast >= slow {
			return fmt.Errorf("fastPeriod must be less than slowPeriod, got %d >= %d", fast, slow)
		}
	}
	return nil
}

func wholePeriod(params map[string]float64, key string) (int, error) {
	v := params[key]
	if v < 1 || v != math.Trunc(v) {
		return 0, fmt.Errorf("%s must be a whole number >= 1, got %v", key, v)
	}
	return int(v), nil
}

func validateSizing(s model.PositionSizing) error {
	switch s.Mode {
	case model.SizingFixed:
		if !s.Value.IsPositive() {
			return fmt.Errorf("fixed position sizing needs a positive value, got %s", s.Value)
		}
	case model.SizingPercent:
		if !s.Value.IsPositive() || s.Value.GreaterThan(hundred) {
			return fmt.Errorf("percent position sizing needs a value in (0, 100], got %s", s.Value)
		}
	default:
		return fmt.Errorf("unknown position sizing mode %q", s.Mode)
	}
	return nil
}

func closes(bars []model.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

func highs(bars []model.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High.InexactFloat64()
	}
	return out
}

func lows(bars []model.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low.InexactFloat64()
	}
	return out
}
