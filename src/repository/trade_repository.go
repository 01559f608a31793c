package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"backtestapi/src/database"
	"backtestapi/src/model"
)

// TradeRepository handles read access to the trades produced by runs.
// Trades are only ever written through RunRepository.SaveCompleted.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new repository instance using the main read/write database.
func NewTradeRepository() *TradeRepository {
	logger.WithField("component", "TradeRepository").
		Info("Creating new TradeRepository with MainDB")

	return &TradeRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// FindByRun returns one page of a run's trades ordered by entry date,
// then symbol, so pages are stable across requests.
func (r *TradeRepository) FindByRun(
	ctx context.Context,
	runID string,
	limit int,
	offset int,
) ([]model.Trade, error) {

	if limit <= 0 {
		limit = 50
	}

	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("entry_date ASC, symbol ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradeRepository",
			"op":     "FindByRun",
			"run_id": runID,
		}).WithError(err).Error("Failed to fetch trades")

		return nil, err
	}

	return trades, nil
}

// CountByRun returns the total number of trades recorded for a run.
func (r *TradeRepository) CountByRun(
	ctx context.Context,
	runID string,
) (int64, error) {

	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Trade{}).
		Where("run_id = ?", runID).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradeRepository",
			"op":     "CountByRun",
			"run_id": runID,
		}).WithError(err).Error("Failed to count trades")

		return 0, err
	}

	return count, nil
}
