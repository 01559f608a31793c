package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"backtestapi/src/database"
	"backtestapi/src/model"
)

const insertBatchSize = 500

// RunRepository handles persistence for BacktestRun entities and, inside
// the completion transaction, their child result rows.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new repository instance using the main read/write database.
func NewRunRepository() *RunRepository {
	logger.WithField("component", "RunRepository").
		Info("Creating new RunRepository with MainDB")

	return &RunRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *RunRepository) WithDB(db *gorm.DB) *RunRepository {
	logger.WithField("component", "RunRepository").
		Debug("Creating RunRepository with custom DB instance")

	return &RunRepository{db: db}
}

// Create inserts a new run. The API submits runs as pending for the
// worker loop; the one-shot run command creates them already claimed.
func (r *RunRepository) Create(
	ctx context.Context,
	run *model.BacktestRun,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "RunRepository",
		"op":       "Create",
		"run_id":   run.ID,
		"strategy": run.Strategy.Type,
		"symbols":  run.Symbols,
	}).Debug("Creating new backtest run")

	err := r.db.WithContext(ctx).Create(run).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "RunRepository",
			"op":     "Create",
			"run_id": run.ID,
		}).WithError(err).Error("Failed to create backtest run")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "RunRepository",
		"op":     "Create",
		"run_id": run.ID,
	}).Info("Backtest run created")

	return nil
}

// FindByID fetches a single run by its ID.
// Returns (nil, nil) if not found.
func (r *RunRepository) FindByID(
	ctx context.Context,
	id string,
) (*model.BacktestRun, error) {

	var run model.BacktestRun

	err := r.db.WithContext(ctx).
		First(&run, "id = ?", id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":   "RunRepository",
			"op":     "FindByID",
			"run_id": id,
		}).WithError(err).Error("Failed to fetch backtest run")

		return nil, err
	}

	return &run, nil
}

// RunSearchOptions filters and paginates run listings.
type RunSearchOptions struct {
	Status *string
	Limit  int
	Offset int
}

// Search lists runs from newest to oldest, optionally filtered by status.
func (r *RunRepository) Search(
	ctx context.Context,
	options RunSearchOptions,
) ([]model.BacktestRun, error) {

	query := r.db.WithContext(ctx).Model(&model.BacktestRun{})

	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}
	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var runs []model.BacktestRun
	err := query.
		Order("created_at DESC, id DESC").
		Find(&runs).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "RunRepository",
			"op":   "Search",
		}).WithError(err).Error("Failed to search backtest runs")

		return nil, err
	}

	return runs, nil
}

// ClaimNextPending picks the oldest pending run and flips it to running.
// Returns (nil, nil) when there is nothing to claim or another worker
// got there first.
func (r *RunRepository) ClaimNextPending(
	ctx context.Context,
) (*model.BacktestRun, error) {

	var pending []model.BacktestRun
	err := r.db.WithContext(ctx).
		Where("status = ?", model.RunStatusPending).
		Order("created_at ASC, id ASC").
		Limit(1).
		Find(&pending).Error
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	run := pending[0]

	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&model.BacktestRun{}).
		Where("id = ? AND status = ?", run.ID, model.RunStatusPending).
		Select("status", "started_at", "updated_at").
		Updates(model.BacktestRun{
			Status:    model.RunStatusRunning,
			StartedAt: &now,
			UpdatedAt: now,
		})

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "RunRepository",
			"op":     "ClaimNextPending",
			"run_id": run.ID,
		}).WithError(res.Error).Error("Failed to claim pending run")

		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// raced with another claim, the next tick retries
		return nil, nil
	}

	run.Status = model.RunStatusRunning
	run.StartedAt = &now
	run.UpdatedAt = now

	logger.WithFields(map[string]interface{}{
		"repo":   "RunRepository",
		"op":     "ClaimNextPending",
		"run_id": run.ID,
	}).Info("Claimed pending run")

	return &run, nil
}

// SaveCompleted writes all result rows and flips the run to completed in
// one transaction. A run that is no longer running (deleted mid-flight,
// failed elsewhere) rolls everything back.
func (r *RunRepository) SaveCompleted(
	ctx context.Context,
	runID string,
	finalCapital decimal.Decimal,
	runMetrics *model.RunMetrics,
	trades []model.Trade,
	equityCurve []model.EquityCurvePoint,
	skippedEntries []model.SkippedEntry,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":          "RunRepository",
		"op":            "SaveCompleted",
		"run_id":        runID,
		"trades":        len(trades),
		"equity_points": len(equityCurve),
	}).Debug("Persisting completed run results")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(trades) > 0 {
			if err := tx.CreateInBatches(&trades, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(equityCurve) > 0 {
			if err := tx.CreateInBatches(&equityCurve, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(skippedEntries) > 0 {
			if err := tx.CreateInBatches(&skippedEntries, insertBatchSize).Error; err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		res := tx.Model(&model.BacktestRun{}).
			Where("id = ? AND status = ?", runID, model.RunStatusRunning).
			Select("status", "final_capital", "metrics", "completed_at", "updated_at").
			Updates(model.BacktestRun{
				Status:       model.RunStatusCompleted,
				FinalCapital: &finalCapital,
				Metrics:      runMetrics,
				CompletedAt:  &now,
				UpdatedAt:    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "RunRepository",
			"op":     "SaveCompleted",
			"run_id": runID,
		}).WithError(err).Error("Failed to persist completed run")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "RunRepository",
		"op":     "SaveCompleted",
		"run_id": runID,
	}).Info("Backtest run completed")

	return nil
}

// MarkFailed flips a running run to failed with the given message.
// Results are never written for failed runs.
func (r *RunRepository) MarkFailed(
	ctx context.Context,
	runID string,
	message string,
) error {

	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&model.BacktestRun{}).
		Where("id = ? AND status = ?", runID, model.RunStatusRunning).
		Select("status", "error_message", "completed_at", "updated_at").
		Updates(model.BacktestRun{
			Status:       model.RunStatusFailed,
			ErrorMessage: message,
			CompletedAt:  &now,
			UpdatedAt:    now,
		})

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "RunRepository",
			"op":     "MarkFailed",
			"run_id": runID,
		}).WithError(res.Error).Error("Failed to mark run as failed")

		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	logger.WithFields(map[string]interface{}{
		"repo":    "RunRepository",
		"op":      "MarkFailed",
		"run_id":  runID,
		"message": message,
	}).Info("Backtest run failed")

	return nil
}

// Delete removes a run and all of its result rows in one transaction.
// Reports whether a run was actually deleted so the handler can stay
// idempotent.
func (r *RunRepository) Delete(
	ctx context.Context,
	runID string,
) (bool, error) {

	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&model.Trade{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", runID).Delete(&model.EquityCurvePoint{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", runID).Delete(&model.SkippedEntry{}).Error; err != nil {
			return err
		}

		res := tx.Delete(&model.BacktestRun{}, "id = ?", runID)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "RunRepository",
			"op":     "Delete",
			"run_id": runID,
		}).WithError(err).Error("Failed to delete backtest run")

		return false, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":    "RunRepository",
		"op":      "Delete",
		"run_id":  runID,
		"deleted": deleted,
	}).Info("Backtest run delete processed")

	return deleted, nil
}
