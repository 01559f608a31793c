package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"backtestapi/src/metrics"
	"backtestapi/src/model"
	"backtestapi/src/portfolio"
	"backtestapi/src/strategy"
)

// ParamRange is an inclusive sweep over one strategy parameter.
type ParamRange struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
	Step float64 `json:"step"`
}

// OptimizationRequest sweeps a strategy's parameter grid over a fixed
// symbol set and date range, scoring every combination by Objective.
// Nothing is persisted; results are returned to the caller.
type OptimizationRequest struct {
	Strategy       model.StrategyConfig  `json:"strategy"`
	Ranges         map[string]ParamRange `json:"ranges"`
	Symbols        []string              `json:"symbols"`
	StartDate      time.Time             `json:"start_date"`
	EndDate        time.Time             `json:"end_date"`
	InitialCapital decimal.Decimal       `json:"initial_capital"`
	Objective      string                `json:"objective"`
	TopN           int                   `json:"top_n"`
}

// OptimizationResult is one scored grid point.
type OptimizationResult struct {
	Params  map[string]float64 `json:"params"`
	Score   float64            `json:"score"`
	Metrics *model.RunMetrics  `json:"metrics"`
}

// Optimize replays the grid over a single bar fetch per symbol. Grid
// points that produce an invalid config (a fast period crossing the
// slow one, say) are silently dropped rather than failing the sweep.
func (e *Engine) Optimize(ctx context.Context, req OptimizationRequest) ([]OptimizationResult, error) {
	if len(req.Ranges) == 0 {
		return nil, errors.New("ranges must not be empty")
	}
	for name, r := range req.Ranges {
		if r.Step <= 0 {
			return nil, fmt.Errorf("range for %s has non-positive step", name)
		}
		if r.To < r.From {
			return nil, fmt.Errorf("range for %s ends before it starts", name)
		}
	}
	if len(req.Symbols) == 0 {
		return nil, errors.New("symbols must not be empty")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, errors.New("start_date must be before end_date")
	}
	if !req.InitialCapital.IsPositive() {
		return nil, errors.New("initial_capital must be positive")
	}

	objective := req.Objective
	if objective == "" {
		objective = "sharpe_ratio"
	}
	if _, err := objectiveScore(&model.RunMetrics{}, objective); err != nil {
		return nil, err
	}

	// one bar fetch per symbol, every combination replays the same series
	allBars := make(map[string][]model.PriceBar, len(req.Symbols))
	for _, symbol := range req.Symbols {
		bars, err := e.provider.FetchDailyBars(ctx, symbol, req.StartDate, req.EndDate)
		if err != nil {
			return nil, err
		}
		allBars[symbol] = bars
	}

	combos := expandGrid(req.Ranges)
	logger.WithFields(map[string]interface{}{
		"component": "Engine",
		"strategy":  req.Strategy.Type,
		"combos":    len(combos),
		"objective": objective,
	}).Info("Starting parameter sweep")

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []OptimizationResult
	)
	sem := make(chan struct{}, e.config.MaxConcurrentSymbols)

	for _, combo := range combos {
		wg.Add(1)
		go func(params map[string]float64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			result, ok := e.scoreCombo(ctx, req, allBars, params, objective)
			if !ok {
				return
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(combo)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, errors.New("no parameter combination produced a valid configuration")
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if req.TopN > 0 && len(results) > req.TopN {
		results = results[:req.TopN]
	}

	return results, nil
}

func (e *Engine) scoreCombo(
	ctx context.Context,
	req OptimizationRequest,
	allBars map[string][]model.PriceBar,
	params map[string]float64,
	objective string,
) (OptimizationResult, bool) {

	cfg := req.Strategy
	cfg.Params = lo.Assign(map[string]float64{}, req.Strategy.Params, params)

	if err := strategy.ValidateConfig(cfg); err != nil {
		return OptimizationResult{}, false
	}

	gen, err := strategy.NewGenerator(cfg)
	if err != nil {
		return OptimizationResult{}, false
	}

	minBars := strategy.MinBars(cfg)
	comboBars := make(map[string][]model.PriceBar, len(allBars))
	comboSignals := make(map[string][]strategy.Signal, len(allBars))
	for symbol, bars := range allBars {
		if len(bars) < minBars {
			continue
		}
		comboBars[symbol] = bars
		comboSignals[symbol] = gen.Signals(bars)
	}
	if len(comboBars) == 0 {
		return OptimizationResult{}, false
	}

	result, err := portfolio.Run(ctx, "", cfg, comboBars, comboSignals, req.InitialCapital, e.commission())
	if err != nil {
		return OptimizationResult{}, false
	}

	m := metrics.Compute(req.InitialCapital, result.FinalCapital, result.EquityCurve, result.Trades, len(result.Skipped))
	score, _ := objectiveScore(m, objective)

	return OptimizationResult{
		Params:  params,
		Score:   score,
		Metrics: m,
	}, true
}

// gridEpsilon absorbs float drift from stepping: values this close to
// a whole number snap to it, values this far past To are cut.
const gridEpsilon = 1e-9

// expandGrid builds the cartesian product of all ranges, parameter
// names in sorted order so the sweep is reproducible. Stepping never
// passes To, and accumulated values that drift off a whole number are
// snapped back so period parameters stay valid.
func expandGrid(ranges map[string]ParamRange) []map[string]float64 {
	names := lo.Keys(ranges)
	sort.Strings(names)

	combos := []map[string]float64{{}}
	for _, name := range names {
		r := ranges[name]
		values := lo.FilterMap(lo.RangeWithSteps(r.From, r.To+r.Step, r.Step), func(value float64, _ int) (float64, bool) {
			if value > r.To+gridEpsilon {
				return 0, false
			}
			if whole := math.Round(value); math.Abs(value-whole) <= gridEpsilon {
				value = whole
			}
			return value, true
		})
		combos = lo.FlatMap(combos, func(combo map[string]float64, _ int) []map[string]float64 {
			return lo.Map(values, func(value float64, _ int) map[string]float64 {
				next := lo.Assign(map[string]float64{}, combo)
				next[name] = value
				return next
			})
		})
	}
	return combos
}

func objectiveScore(m *model.RunMetrics, objective string) (float64, error) {
	switch objective {
	case "sharpe_ratio":
		return m.SharpeRatio, nil
	case "sortino_ratio":
		return m.SortinoRatio, nil
	case "total_return":
		return m.TotalReturn, nil
	case "cagr":
		return m.CAGR, nil
	case "profit_factor":
		return m.ProfitFactor, nil
	default:
		return 0, fmt.Errorf("unknown objective %q", objective)
	}
}
