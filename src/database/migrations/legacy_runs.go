package migrations

import (
	"fmt"
	"time"

	"backtestapi/src/model"

	"gorm.io/gorm"
)

// backfillTradeReturnPct fills return_pct for closed trades recorded before
// the column was introduced. Short returns flip sign relative to the price
// move.
func backfillTradeReturnPct(db *gorm.DB) error {
	return db.Model(&model.Trade{}).
		Where("is_open = ? AND return_pct IS NULL AND exit_price IS NOT NULL AND entry_price > 0", false).
		Update("return_pct", gorm.Expr(
			"CASE WHEN side = ? THEN (entry_price - exit_price) / entry_price ELSE (exit_price - entry_price) / entry_price END",
			model.SideShort,
		)).Error
}

// failInterruptedRuns flips runs that were mid-flight when the process
// stopped to failed and removes whatever partial results they wrote.
// A run either completes with its full result set or fails with none.
func failInterruptedRuns(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&model.BacktestRun{}).
			Where("status = ?", model.RunStatusRunning).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("collect interrupted runs: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("run_id IN ?", ids).Delete(&model.Trade{}).Error; err != nil {
			return fmt.Errorf("clear trades of interrupted runs: %w", err)
		}
		if err := tx.Where("run_id IN ?", ids).Delete(&model.EquityCurvePoint{}).Error; err != nil {
			return fmt.Errorf("clear equity points of interrupted runs: %w", err)
		}
		if err := tx.Where("run_id IN ?", ids).Delete(&model.SkippedEntry{}).Error; err != nil {
			return fmt.Errorf("clear skipped entries of interrupted runs: %w", err)
		}

		now := time.Now().UTC()
		if err := tx.Model(&model.BacktestRun{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":        model.RunStatusFailed,
				"error_message": "interrupted by restart",
				"completed_at":  now,
				"updated_at":    now,
			}).Error; err != nil {
			return fmt.Errorf("fail interrupted runs: %w", err)
		}

		return nil
	})
}
