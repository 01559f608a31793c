package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"backtestapi/src/database"
	"backtestapi/src/model"
)

// SkippedEntryRepository reads the entries a run could not fund.
type SkippedEntryRepository struct {
	db *gorm.DB
}

// NewSkippedEntryRepository creates a new repository instance using the main read/write database.
func NewSkippedEntryRepository() *SkippedEntryRepository {
	logger.WithField("component", "SkippedEntryRepository").
		Info("Creating new SkippedEntryRepository with MainDB")

	return &SkippedEntryRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SkippedEntryRepository) WithDB(db *gorm.DB) *SkippedEntryRepository {
	return &SkippedEntryRepository{db: db}
}

// FindByRun returns one page of a run's skipped entries in date order.
func (r *SkippedEntryRepository) FindByRun(
	ctx context.Context,
	runID string,
	limit int,
	offset int,
) ([]model.SkippedEntry, error) {

	if limit <= 0 {
		limit = 50
	}

	var entries []model.SkippedEntry
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("date ASC, symbol ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SkippedEntryRepository",
			"op":     "FindByRun",
			"run_id": runID,
		}).WithError(err).Error("Failed to fetch skipped entries")

		return nil, err
	}

	return entries, nil
}

// CountByRun returns the total number of skipped entries for a run.
func (r *SkippedEntryRepository) CountByRun(
	ctx context.Context,
	runID string,
) (int64, error) {

	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.SkippedEntry{}).
		Where("run_id = ?", runID).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SkippedEntryRepository",
			"op":     "CountByRun",
			"run_id": runID,
		}).WithError(err).Error("Failed to count skipped entries")

		return 0, err
	}

	return count, nil
}
