package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquityCurvePoint is one portfolio-wide trading day: pooled cash plus
// the mark-to-market value of every open position. Equity always equals
// Cash + PositionsValue. One point per trading day in the run's
// calendar, strictly ascending.
type EquityCurvePoint struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	RunID          string          `gorm:"size:36;not null;uniqueIndex:ux_equity_points_run_date,priority:1" json:"run_id"`
	Date           time.Time       `gorm:"not null;uniqueIndex:ux_equity_points_run_date,priority:2" json:"date"`
	Equity         decimal.Decimal `gorm:"type:double precision;not null" json:"equity"`
	Cash           decimal.Decimal `gorm:"type:double precision;not null" json:"cash"`
	PositionsValue decimal.Decimal `gorm:"type:double precision;not null" json:"positions_value"`
	DailyReturn    float64         `gorm:"not null" json:"daily_return"`
	Drawdown       float64         `gorm:"not null" json:"drawdown"`

	Run *BacktestRun `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (EquityCurvePoint) TableName() string {
	return "equity_curve_points"
}

// EquityCurveSeries is the chart-friendly wire shape of a run's curve:
// parallel arrays of equal length, one entry per trading day. Dates use
// the 2006-01-02 layout; money values serialize as decimal strings.
type EquityCurveSeries struct {
	Dates          []string          `json:"dates"`
	Equity         []decimal.Decimal `json:"equity"`
	Cash           []decimal.Decimal `json:"cash"`
	PositionsValue []decimal.Decimal `json:"positions_value"`
	DailyReturns   []float64         `json:"daily_returns"`
	Drawdowns      []float64         `json:"drawdowns"`
}
