package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"backtestapi/cmd/ingestcrypto"
	"backtestapi/cmd/ingeststocks"
	"backtestapi/cmd/runner"
	"backtestapi/src/backtest"
	"backtestapi/src/database"
	"backtestapi/src/model"
	"backtestapi/src/repository"
	"backtestapi/src/security"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "backtestapi"
	app.Usage = "The backtest service command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		workerCMD,
		runCMD,
		optimizeCMD,
		ingestCryptoCMD,
		ingestStocksCMD,
		encryptKeyCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	workerCMD = cli.Command{
		Name:        "worker",
		Usage:       "run the pending-run worker loop",
		Action:      workerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Claim pending backtest runs and execute them until interrupted`,
	}
	runCMD = cli.Command{
		Name:        "run",
		Usage:       "execute one backtest run",
		Action:      runAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Execute a single backtest configured through the environment and persist the results`,
	}
	optimizeCMD = cli.Command{
		Name:        "optimize",
		Usage:       "sweep a strategy parameter grid",
		Action:      optimizeAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Score every parameter combination in PARAM_RANGES and print the ranking`,
	}
	ingestCryptoCMD = cli.Command{
		Name:        "ingest-crypto",
		Usage:       "ingest daily crypto bars",
		Action:      ingestCryptoAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Pull daily exchange klines and upsert them into price_bars`,
	}
	ingestStocksCMD = cli.Command{
		Name:        "ingest-stocks",
		Usage:       "ingest daily stock bars",
		Action:      ingestStocksAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Pull end-of-day stock bars from the market data feed and upsert them into price_bars`,
	}
	encryptKeyCMD = cli.Command{
		Name:        "encrypt-key",
		Usage:       "encrypt a market data API key",
		Action:      encryptKeyAction,
		ArgsUsage:   "<plaintext>",
		Flags:       []cli.Flag{},
		Description: `Print the encrypted form of an API key for TIINGO_API_KEY_ENCRYPTED`,
	}
)

type runConfig struct {
	Strategy       string             `envconfig:"STRATEGY" default:"moving-average-crossover"`
	Params         map[string]float64 `envconfig:"STRATEGY_PARAMS" default:"fastPeriod:20,slowPeriod:50"`
	SizingMode     string             `envconfig:"SIZING_MODE" default:"fixed"`
	SizingValue    decimal.Decimal    `envconfig:"SIZING_VALUE" default:"10000"`
	StopLossPct    *float64           `envconfig:"STOP_LOSS_PCT"`
	TakeProfitPct  *float64           `envconfig:"TAKE_PROFIT_PCT"`
	Symbols        []string           `envconfig:"SYMBOLS" default:"AAPL"`
	StartDate      time.Time          `envconfig:"START_DATE" default:"2023-01-01T00:00:00Z"`
	EndDate        time.Time          `envconfig:"END_DATE" default:"2024-01-01T00:00:00Z"`
	InitialCapital decimal.Decimal    `envconfig:"INITIAL_CAPITAL" default:"100000"`
}

type optimizeConfig struct {
	runConfig
	Ranges    string `envconfig:"PARAM_RANGES" required:"true"`
	Objective string `envconfig:"OBJECTIVE" default:"sharpe_ratio"`
	TopN      int    `envconfig:"TOP_N" default:"10"`
}

func (c runConfig) strategyConfig() model.StrategyConfig {
	return model.StrategyConfig{
		Type:   c.Strategy,
		Params: c.Params,
		PositionSizing: model.PositionSizing{
			Mode:  c.SizingMode,
			Value: c.SizingValue,
		},
		StopLossPct:   c.StopLossPct,
		TakeProfitPct: c.TakeProfitPct,
	}
}

func workerAction(_ *cli.Context) error {
	logrus.Info("Starting worker CMD")

	w := &runner.Runner{}
	if err := w.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func runAction(_ *cli.Context) error {
	logrus.Info("Starting run CMD")

	var cfg runConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("error processing env config: %w", err)
	}

	// This command is the run's only worker, so the run is created
	// already claimed instead of passing through pending. Results only
	// persist for a running run.
	now := time.Now().UTC()
	run := &model.BacktestRun{
		ID:             uuid.NewString(),
		Status:         model.RunStatusRunning,
		StartedAt:      &now,
		Strategy:       cfg.strategyConfig(),
		Symbols:        cfg.Symbols,
		StartDate:      cfg.StartDate,
		EndDate:        cfg.EndDate,
		InitialCapital: cfg.InitialCapital,
	}
	if err := backtest.ValidateRun(run); err != nil {
		return err
	}

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := repository.NewRunRepository()
	if err := repo.Create(ctx, run); err != nil {
		return err
	}

	engine := backtest.NewDefaultEngine(nil)
	if err := engine.Execute(ctx, run); err != nil {
		return err
	}

	completed, err := repo.FindByID(ctx, run.ID)
	if err != nil {
		return err
	}

	fields := logrus.Fields{"run": completed.ID, "final_capital": completed.FinalCapital}
	if completed.Metrics != nil {
		fields["total_return"] = completed.Metrics.TotalReturn
		fields["sharpe_ratio"] = completed.Metrics.SharpeRatio
		fields["max_drawdown"] = completed.Metrics.MaxDrawdown
		fields["trades"] = completed.Metrics.TotalTrades
	}
	logrus.WithFields(fields).Info("Backtest run completed")

	return nil
}

func optimizeAction(_ *cli.Context) error {
	logrus.Info("Starting optimize CMD")

	var cfg optimizeConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("error processing env config: %w", err)
	}

	var ranges map[string]backtest.ParamRange
	if err := json.Unmarshal([]byte(cfg.Ranges), &ranges); err != nil {
		return fmt.Errorf("failed to parse PARAM_RANGES: %w", err)
	}

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := backtest.NewDefaultEngine(nil)
	results, err := engine.Optimize(ctx, backtest.OptimizationRequest{
		Strategy:       cfg.strategyConfig(),
		Ranges:         ranges,
		Symbols:        cfg.Symbols,
		StartDate:      cfg.StartDate,
		EndDate:        cfg.EndDate,
		InitialCapital: cfg.InitialCapital,
		Objective:      cfg.Objective,
		TopN:           cfg.TopN,
	})
	if err != nil {
		return err
	}

	for i, result := range results {
		logrus.WithFields(logrus.Fields{
			"rank":   i + 1,
			"params": result.Params,
			"score":  result.Score,
			"trades": result.Metrics.TotalTrades,
		}).Info("Optimization result")
	}

	return nil
}

func ingestCryptoAction(_ *cli.Context) error {
	logrus.Info("Starting crypto ingestion CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	ingest := &ingestcrypto.IngestCrypto{
		Log: logrus.WithField("cmd", "ingest-crypto"),
		DB:  database.MainDB,
	}

	if err := ingest.Start(); err != nil {
		logrus.WithError(err).Error("Starting ingest-crypto cmd")
		return err
	}

	return nil
}

func ingestStocksAction(_ *cli.Context) error {
	logrus.Info("Starting stock ingestion CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingest := &ingeststocks.IngestStocks{
		Log: logrus.WithField("cmd", "ingest-stocks"),
		DB:  database.MainDB,
	}

	if err := ingest.Start(ctx); err != nil {
		logrus.WithError(err).Error("Starting ingest-stocks cmd")
		return err
	}

	return nil
}

func encryptKeyAction(c *cli.Context) error {
	plaintext := c.Args().First()
	if plaintext == "" {
		return errors.New("usage: encrypt-key <plaintext>")
	}

	encrypted, err := security.EncryptString(plaintext)
	if err != nil {
		return err
	}

	fmt.Println(encrypted)
	return nil
}
