package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Signal labels recorded on trades. Entry labels name the signal that
// opened the position, exit labels name what closed it; stop and target
// exits pre-empt strategy exits.
const (
	SignalEnterLong  = "enter_long"
	SignalEnterShort = "enter_short"
	ExitStopLoss     = "stop_loss"
	ExitTakeProfit   = "take_profit"
	ExitStrategy     = "strategy_exit"
)

// Trade is one round trip (or still-open position) produced by the
// position simulator. Created when a position opens, finalized when it
// closes, immutable afterwards. Exit fields stay null while open.
type Trade struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RunID       string           `gorm:"size:36;not null;index:idx_trades_run_entry,priority:1" json:"run_id"`
	Symbol      string           `gorm:"size:50;not null" json:"symbol"`
	Side        string           `gorm:"size:10;not null" json:"side"`
	EntryDate   time.Time        `gorm:"not null;index:idx_trades_run_entry,priority:2" json:"entry_date"`
	EntryPrice  decimal.Decimal  `gorm:"type:double precision;not null" json:"entry_price"`
	ExitDate    *time.Time       `json:"exit_date"`
	ExitPrice   *decimal.Decimal `gorm:"type:double precision" json:"exit_price"`
	Quantity    decimal.Decimal  `gorm:"type:double precision;not null" json:"quantity"`
	EntrySignal string           `gorm:"size:30;not null" json:"entry_signal"`
	ExitSignal  string           `gorm:"size:30" json:"exit_signal,omitempty"`
	PnL         *decimal.Decimal `gorm:"type:double precision" json:"pnl"`
	ReturnPct   *float64         `json:"return_pct"`
	Fees        decimal.Decimal  `gorm:"type:double precision;not null" json:"fees"`
	IsOpen      bool             `gorm:"not null;default:false" json:"is_open"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`

	Run *BacktestRun `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Trade) TableName() string {
	return "trades"
}
