package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

const (
	StrategyMovingAverageCrossover = "moving-average-crossover"
	StrategyRSIThreshold           = "rsi-threshold"
	StrategyChannelBreakout        = "channel-breakout"
	StrategyMACDCrossover          = "macd-crossover"
)

const (
	SizingFixed   = "fixed"
	SizingPercent = "percent"
)

// PositionSizing converts available capital into a trade quantity.
// Mode "fixed" allocates Value capital per trade, "percent" allocates
// Value percent of current capital.
type PositionSizing struct {
	Mode  string          `json:"mode"`
	Value decimal.Decimal `json:"value"`
}

// StrategyConfig is the full strategy definition submitted with a run.
// Params carries the numeric parameters required by Type, nothing else.
type StrategyConfig struct {
	Type           string             `json:"type"`
	Params         map[string]float64 `json:"params"`
	PositionSizing PositionSizing     `json:"position_sizing"`
	StopLossPct    *float64           `json:"stop_loss_pct,omitempty"`
	TakeProfitPct  *float64           `json:"take_profit_pct,omitempty"`
}

// RunMetrics is computed once, after the equity curve and trade ledger
// exist. AvgWin and AvgLoss stay null when the respective trade set is
// empty; no field is ever NaN or infinite.
type RunMetrics struct {
	TotalReturn    float64          `json:"total_return"`
	CAGR           float64          `json:"cagr"`
	SharpeRatio    float64          `json:"sharpe_ratio"`
	SortinoRatio   float64          `json:"sortino_ratio"`
	MaxDrawdown    float64          `json:"max_drawdown"`
	WinRate        float64          `json:"win_rate"`
	ProfitFactor   float64          `json:"profit_factor"`
	AvgWin         *decimal.Decimal `json:"avg_win"`
	AvgLoss        *decimal.Decimal `json:"avg_loss"`
	TotalTrades    int              `json:"total_trades"`
	WinningTrades  int              `json:"winning_trades"`
	LosingTrades   int              `json:"losing_trades"`
	OpenTrades     int              `json:"open_trades"`
	SkippedEntries int              `json:"skipped_entries"`
}

// BacktestRun aggregates everything about one backtest: the submitted
// strategy, the symbol universe and date range, lifecycle status and,
// once completed, the final capital and summary metrics. Only the run
// orchestrator mutates it after creation.
type BacktestRun struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	Status         string           `gorm:"size:20;not null;default:pending;index" json:"status"`
	ErrorMessage   string           `gorm:"size:1024" json:"error_message,omitempty"`
	Strategy       StrategyConfig   `gorm:"type:jsonb;serializer:json" json:"strategy"`
	Symbols        []string         `gorm:"type:jsonb;serializer:json" json:"symbols"`
	StartDate      time.Time        `gorm:"not null" json:"start_date"`
	EndDate        time.Time        `gorm:"not null" json:"end_date"`
	InitialCapital decimal.Decimal  `gorm:"type:double precision;not null" json:"initial_capital"`
	FinalCapital   *decimal.Decimal `gorm:"type:double precision" json:"final_capital"`
	Metrics        *RunMetrics      `gorm:"type:jsonb;serializer:json" json:"metrics"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`

	Trades         []Trade            `gorm:"foreignKey:RunID" json:"trades,omitempty"`
	EquityCurve    []EquityCurvePoint `gorm:"foreignKey:RunID" json:"equity_curve,omitempty"`
	SkippedEntries []SkippedEntry     `gorm:"foreignKey:RunID" json:"skipped_entries,omitempty"`
}

func (BacktestRun) TableName() string {
	return "backtest_runs"
}
