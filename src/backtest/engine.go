package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"backtestapi/src/metrics"
	"backtestapi/src/model"
	"backtestapi/src/portfolio"
	"backtestapi/src/pricedata"
	"backtestapi/src/repository"
	"backtestapi/src/strategy"
)

// runStore is the slice of RunRepository the engine writes through.
type runStore interface {
	SaveCompleted(ctx context.Context, runID string, finalCapital decimal.Decimal, runMetrics *model.RunMetrics, trades []model.Trade, equityCurve []model.EquityCurvePoint, skippedEntries []model.SkippedEntry) error
	MarkFailed(ctx context.Context, runID string, message string) error
}

// EventPublisher receives run lifecycle transitions. The websocket hub
// implements it in production.
type EventPublisher interface {
	PublishRunEvent(runID string, status string)
}

type noopPublisher struct{}

func (noopPublisher) PublishRunEvent(string, string) {}

// Engine executes claimed backtest runs end to end: load bars, generate
// signals, replay the portfolio, compute metrics, persist.
type Engine struct {
	store    runStore
	provider pricedata.Provider
	events   EventPublisher
	config   Config
}

// NewEngine creates an engine over explicit collaborators.
func NewEngine(store runStore, provider pricedata.Provider, events EventPublisher, config Config) *Engine {
	if events == nil {
		events = noopPublisher{}
	}
	if config.MaxConcurrentSymbols <= 0 {
		config.MaxConcurrentSymbols = 1
	}

	return &Engine{
		store:    store,
		provider: provider,
		events:   events,
		config:   config,
	}
}

// NewDefaultEngine wires the engine to the production repository and
// the database-backed bar provider.
func NewDefaultEngine(events EventPublisher) *Engine {
	return NewEngine(repository.NewRunRepository(), pricedata.NewDBProvider(), events, GetConfig())
}

// ValidateRun rejects a submission before anything is persisted.
func ValidateRun(run *model.BacktestRun) error {
	if len(run.Symbols) == 0 {
		return errors.New("symbols must not be empty")
	}
	seen := make(map[string]struct{}, len(run.Symbols))
	for _, symbol := range run.Symbols {
		if symbol == "" {
			return errors.New("symbols must not contain empty entries")
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("duplicate symbol %s", symbol)
		}
		seen[symbol] = struct{}{}
	}
	if !run.EndDate.After(run.StartDate) {
		return errors.New("start_date must be before end_date")
	}
	if !run.InitialCapital.IsPositive() {
		return errors.New("initial_capital must be positive")
	}
	return strategy.ValidateConfig(run.Strategy)
}

// Execute runs a claimed run to completion, persisting either the full
// result set or a failure. Cancellation is honored between trading
// days; a run deleted mid-flight has nowhere to write back to and its
// results are discarded.
func (e *Engine) Execute(ctx context.Context, run *model.BacktestRun) error {
	log := logger.WithFields(map[string]interface{}{
		"component": "Engine",
		"run_id":    run.ID,
		"strategy":  run.Strategy.Type,
	})
	log.WithField("symbols", run.Symbols).Info("Executing backtest run")
	e.events.PublishRunEvent(run.ID, model.RunStatusRunning)

	if err := ValidateRun(run); err != nil {
		return e.fail(ctx, run.ID, err)
	}

	series, err := e.loadSeries(ctx, run)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return e.fail(ctx, run.ID, err)
	}

	result, err := portfolio.Run(ctx, run.ID, run.Strategy, series.bars, series.signals, run.InitialCapital, e.commission())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return e.fail(ctx, run.ID, err)
	}

	runMetrics := metrics.Compute(run.InitialCapital, result.FinalCapital, result.EquityCurve, result.Trades, len(result.Skipped))

	err = e.store.SaveCompleted(ctx, run.ID, result.FinalCapital, runMetrics, result.Trades, result.EquityCurve, result.Skipped)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Info("Run disappeared before completion, discarding results")
			return nil
		}
		log.WithError(err).Error("Failed to persist run results")
		return err
	}

	e.events.PublishRunEvent(run.ID, model.RunStatusCompleted)
	log.WithFields(map[string]interface{}{
		"trades":        len(result.Trades),
		"final_capital": result.FinalCapital,
	}).Info("Backtest run completed")

	return nil
}

func (e *Engine) fail(ctx context.Context, runID string, cause error) error {
	logger.WithFields(map[string]interface{}{
		"component": "Engine",
		"run_id":    runID,
	}).WithError(cause).Warn("Backtest run failed")

	if err := e.store.MarkFailed(ctx, runID, cause.Error()); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.WithFields(map[string]interface{}{
			"component": "Engine",
			"run_id":    runID,
		}).WithError(err).Error("Failed to record run failure")
	}

	e.events.PublishRunEvent(runID, model.RunStatusFailed)
	return cause
}

type symbolSeries struct {
	bars    map[string][]model.PriceBar
	signals map[string][]strategy.Signal
}

// loadSeries fetches bars and computes signals for every symbol, a few
// symbols at a time. Symbols without usable data fail the run unless
// partial runs are allowed, in which case they are dropped.
func (e *Engine) loadSeries(ctx context.Context, run *model.BacktestRun) (*symbolSeries, error) {
	minBars := strategy.MinBars(run.Strategy)

	series := &symbolSeries{
		bars:    make(map[string][]model.PriceBar, len(run.Symbols)),
		signals: make(map[string][]strategy.Signal, len(run.Symbols)),
	}
	failures := make(map[string]error)

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.config.MaxConcurrentSymbols)

	for _, symbol := range run.Symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			bars, err := e.provider.FetchDailyBars(ctx, symbol, run.StartDate, run.EndDate)
			if err == nil && len(bars) < minBars {
				err = fmt.Errorf(
					"symbol %s has %d bars in range, strategy %s needs at least %d",
					symbol, len(bars), run.Strategy.Type, minBars,
				)
			}

			var signals []strategy.Signal
			if err == nil {
				var gen strategy.Generator
				gen, err = strategy.NewGenerator(run.Strategy)
				if err == nil {
					signals = gen.Signals(bars)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[symbol] = err
				return
			}
			series.bars[symbol] = bars
			series.signals[symbol] = signals
		}(symbol)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if len(failures) > 0 && !e.config.AllowPartialSymbols {
		// report the first failing symbol in submission order
		for _, symbol := range run.Symbols {
			if err, ok := failures[symbol]; ok {
				return nil, err
			}
		}
	}
	if len(series.bars) == 0 {
		for _, symbol := range run.Symbols {
			if err, ok := failures[symbol]; ok {
				return nil, err
			}
		}
		return nil, errors.New("no symbols with usable price data")
	}
	if len(failures) > 0 {
		logger.WithFields(map[string]interface{}{
			"component":       "Engine",
			"run_id":          run.ID,
			"skipped_symbols": len(failures),
		}).Warn("Continuing without symbols that have no usable data")
	}

	return series, nil
}

func (e *Engine) commission() decimal.Decimal {
	return decimal.NewFromFloat(e.config.CommissionBps)
}
