package executors

import (
	"context"
	"errors"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"backtestapi/src/backtest"
	"backtestapi/src/model"
	"backtestapi/src/repository"
)

type runClaimer interface {
	ClaimNextPending(ctx context.Context) (*model.BacktestRun, error)
}

type runExecutor interface {
	Execute(ctx context.Context, run *model.BacktestRun) error
}

// seams for tests
var (
	newRunClaimer = func() runClaimer {
		return repository.NewRunRepository()
	}
	newRunExecutor = func(events backtest.EventPublisher) runExecutor {
		return backtest.NewDefaultEngine(events)
	}
)

// activeRuns tracks the cancel funcs of runs this worker is executing
// so a delete request can stop them mid-flight.
var activeRuns = &runRegistry{cancels: make(map[string]context.CancelFunc)}

type runRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func (r *runRegistry) add(runID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[runID] = cancel
}

func (r *runRegistry) remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, runID)
}

func (r *runRegistry) cancel(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.cancels[runID]
	if ok {
		cancel()
	}
	return ok
}

// CancelRun cancels the in-flight execution of runID on this worker.
// Reports whether a matching run was actually executing.
func CancelRun(runID string) bool {
	return activeRuns.cancel(runID)
}

// StartLoop polls the run queue until ctx is cancelled, executing up to
// MaxParallelRuns claimed runs at a time. Claim errors are retried on
// the next tick; a run interrupted by shutdown is recovered at the next
// boot.
func StartLoop(ctx context.Context, events backtest.EventPublisher) error {
	config := GetConfig()

	if config.MaxParallelRuns < 1 {
		return errors.New("max_parallel_runs must be at least 1")
	}

	claimer := newRunClaimer()
	executor := newRunExecutor(events)

	ticker := time.NewTicker(config.LoopPeriod) // Set up a ticker that fires periodically
	defer ticker.Stop()

	logger.WithFields(map[string]interface{}{
		"component":         "Worker",
		"loop_period":       config.LoopPeriod.String(),
		"max_parallel_runs": config.MaxParallelRuns,
	}).Info("Backtest worker started")

	sem := make(chan struct{}, config.MaxParallelRuns)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			logger.Println("worker loop stopped, waiting for in-flight runs")
			wg.Wait()
			return nil

		case <-ticker.C:
			drainQueue(ctx, claimer, executor, sem, &wg)
		}
	}
}

// drainQueue claims pending runs until the queue is empty or every
// worker slot is busy. Slots are acquired before claiming so a claimed
// run never sits waiting for capacity.
func drainQueue(ctx context.Context, claimer runClaimer, executor runExecutor, sem chan struct{}, wg *sync.WaitGroup) {
	for {
		if ctx.Err() != nil {
			return
		}

		select {
		case sem <- struct{}{}:
		default:
			return // all slots busy, the next tick retries
		}

		run, err := claimer.ClaimNextPending(ctx)
		if err != nil {
			<-sem
			logger.WithError(err).Error("Failed to claim pending run")
			return
		}
		if run == nil {
			<-sem
			return
		}

		wg.Add(1)
		go func(run *model.BacktestRun) {
			defer wg.Done()
			defer func() { <-sem }()
			executeRun(ctx, executor, run)
		}(run)
	}
}

func executeRun(ctx context.Context, executor runExecutor, run *model.BacktestRun) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	activeRuns.add(run.ID, cancel)
	defer activeRuns.remove(run.ID)

	log := logger.WithFields(map[string]interface{}{
		"component": "Worker",
		"run_id":    run.ID,
		"strategy":  run.Strategy.Type,
	})
	log.Info("Picked up pending run")

	if err := executor.Execute(runCtx, run); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Run cancelled")
			return
		}
		log.WithError(err).Warn("Run finished with error")
		return
	}
	log.Info("Run completed")
}
