package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"backtestapi/src/database"
	"backtestapi/src/executors"
)

// Runner hosts the standalone pending-run worker. Unlike the API process it
// has no websocket hub, so run events are discarded.
type Runner struct{}

func (r *Runner) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database. The worker only writes
	// through the engine, so the read-only pool stays with the API
	// process.
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	logrus.Info("Starting backtest run worker")

	if err := executors.StartLoop(ctx, nil); err != nil {
		logrus.WithError(err).Error("Failed to start worker loop")
		return err
	}

	return nil
}
