package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"backtestapi/src/database"
	"backtestapi/src/model"
)

// EquityCurveRepository reads the daily equity points of a run.
type EquityCurveRepository struct {
	db *gorm.DB
}

// NewEquityCurveRepository creates a new repository instance using the main read/write database.
func NewEquityCurveRepository() *EquityCurveRepository {
	logger.WithField("component", "EquityCurveRepository").
		Info("Creating new EquityCurveRepository with MainDB")

	return &EquityCurveRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *EquityCurveRepository) WithDB(db *gorm.DB) *EquityCurveRepository {
	return &EquityCurveRepository{db: db}
}

// FindByRun returns the full curve in ascending date order. Curves are
// served whole, one point per trading day, so charts never have to
// stitch pages together.
func (r *EquityCurveRepository) FindByRun(
	ctx context.Context,
	runID string,
) ([]model.EquityCurvePoint, error) {

	var points []model.EquityCurvePoint
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("date ASC").
		Find(&points).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "EquityCurveRepository",
			"op":     "FindByRun",
			"run_id": runID,
		}).WithError(err).Error("Failed to fetch equity curve")

		return nil, err
	}

	return points, nil
}
