package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"backtestapi/src/database"
	"backtestapi/src/model"
)

// PriceBarRepository handles persistence for daily OHLCV bars.
type PriceBarRepository struct {
	db *gorm.DB
}

// NewPriceBarRepository creates a new repository instance using the main read/write database.
func NewPriceBarRepository() *PriceBarRepository {
	logger.WithField("component", "PriceBarRepository").
		Info("Creating new PriceBarRepository with MainDB")

	return &PriceBarRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PriceBarRepository) WithDB(db *gorm.DB) *PriceBarRepository {
	return &PriceBarRepository{db: db}
}

// FindRange returns a symbol's bars inside [from, to] in ascending date
// order, the shape every downstream consumer expects.
func (r *PriceBarRepository) FindRange(
	ctx context.Context,
	symbol string,
	from time.Time,
	to time.Time,
) ([]model.PriceBar, error) {

	var bars []model.PriceBar
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND date >= ? AND date <= ?", symbol, from, to).
		Order("date ASC").
		Find(&bars).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PriceBarRepository",
			"op":     "FindRange",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch price bars")

		return nil, err
	}

	return bars, nil
}

// UpsertBatch inserts bars, overwriting prices on the (symbol, date)
// conflict so re-ingesting a range is safe.
func (r *PriceBarRepository) UpsertBatch(
	ctx context.Context,
	bars []model.PriceBar,
) error {

	if len(bars) == 0 {
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"repo": "PriceBarRepository",
		"op":   "UpsertBatch",
		"rows": len(bars),
	}).Debug("Upserting price bars")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "symbol"},
				{Name: "date"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"open",
				"high",
				"low",
				"close",
				"volume",
			}),
		}).
		CreateInBatches(&bars, insertBatchSize).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PriceBarRepository",
			"op":   "UpsertBatch",
			"rows": len(bars),
		}).WithError(err).Error("Failed to upsert price bars")

		return err
	}

	return nil
}

// LatestDate returns the date of the most recent stored bar for a
// symbol, or (nil, nil) when the symbol has no bars yet. Ingestion uses
// it to resume where the last load stopped.
func (r *PriceBarRepository) LatestDate(
	ctx context.Context,
	symbol string,
) (*time.Time, error) {

	var bar model.PriceBar
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("date DESC").
		First(&bar).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":   "PriceBarRepository",
			"op":     "LatestDate",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch latest bar date")

		return nil, err
	}

	return &bar.Date, nil
}

// Symbols returns every symbol that has at least one stored bar.
func (r *PriceBarRepository) Symbols(
	ctx context.Context,
) ([]string, error) {

	var symbols []string
	err := r.db.WithContext(ctx).
		Model(&model.PriceBar{}).
		Distinct().
		Order("symbol ASC").
		Pluck("symbol", &symbols).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PriceBarRepository",
			"op":   "Symbols",
		}).WithError(err).Error("Failed to list symbols")

		return nil, err
	}

	return symbols, nil
}
