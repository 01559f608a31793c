package model

import "time"

const SkipReasonInsufficientCapital = "insufficient_capital"

// SkippedEntry records an entry signal that could not be sized to at
// least one share. Capital exhaustion is not an error, but it must be
// visible in the run's output.
type SkippedEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RunID     string    `gorm:"size:36;not null;index" json:"run_id"`
	Symbol    string    `gorm:"size:50;not null" json:"symbol"`
	Date      time.Time `gorm:"not null" json:"date"`
	Side      string    `gorm:"size:10;not null" json:"side"`
	Signal    string    `gorm:"size:30;not null" json:"signal"`
	Reason    string    `gorm:"size:255;not null" json:"reason"`
	CreatedAt time.Time `json:"created_at"`

	Run *BacktestRun `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (SkippedEntry) TableName() string {
	return "skipped_entries"
}
