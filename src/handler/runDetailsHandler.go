package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"backtestapi/src/database"
	"backtestapi/src/mapper"
	"backtestapi/src/model"
	"backtestapi/src/repository"
)

type tradeLister interface {
	FindByRun(ctx context.Context, runID string, limit, offset int) ([]model.Trade, error)
	CountByRun(ctx context.Context, runID string) (int64, error)
}

type skippedEntryLister interface {
	FindByRun(ctx context.Context, runID string, limit, offset int) ([]model.SkippedEntry, error)
	CountByRun(ctx context.Context, runID string) (int64, error)
}

type equityCurveLister interface {
	FindByRun(ctx context.Context, runID string) ([]model.EquityCurvePoint, error)
}

// loadRun resolves the runID path parameter, writing the error response
// itself. A nil return means the response is already written.
func loadRun(w http.ResponseWriter, r *http.Request, runs runFinder) *model.BacktestRun {
	runID := chi.URLParam(r, "runID")

	run, err := runs.FindByID(r.Context(), runID)
	if err != nil {
		logger.WithError(err).Error("failed to load backtest run")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return nil
	}
	return run
}

// ListTradesHandler pages through a run's trade ledger ordered by
// entry date, symbol, id.
func ListTradesHandler(runs runFinder, trades tradeLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run := loadRun(w, r, runs)
		if run == nil {
			return
		}

		page, pageSize, err := parsePaging(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		items, err := trades.FindByRun(r.Context(), run.ID, pageSize, (page-1)*pageSize)
		if err != nil {
			logger.WithError(err).Error("failed to list trades")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		total, err := trades.CountByRun(r.Context(), run.ID)
		if err != nil {
			logger.WithError(err).Error("failed to count trades")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if items == nil {
			items = []model.Trade{}
		}

		writeJSON(w, http.StatusOK, pagedResponse{
			Items:    items,
			Total:    total,
			Page:     page,
			PageSize: pageSize,
		})
	}
}

// ListSkippedEntriesHandler pages through a run's capital-exhaustion
// records.
func ListSkippedEntriesHandler(runs runFinder, skipped skippedEntryLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run := loadRun(w, r, runs)
		if run == nil {
			return
		}

		page, pageSize, err := parsePaging(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		items, err := skipped.FindByRun(r.Context(), run.ID, pageSize, (page-1)*pageSize)
		if err != nil {
			logger.WithError(err).Error("failed to list skipped entries")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		total, err := skipped.CountByRun(r.Context(), run.ID)
		if err != nil {
			logger.WithError(err).Error("failed to count skipped entries")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if items == nil {
			items = []model.SkippedEntry{}
		}

		writeJSON(w, http.StatusOK, pagedResponse{
			Items:    items,
			Total:    total,
			Page:     page,
			PageSize: pageSize,
		})
	}
}

// GetEquityCurveHandler returns a run's whole curve as parallel arrays;
// curves are one point per trading day, small enough to serve unpaged.
func GetEquityCurveHandler(runs runFinder, curves equityCurveLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run := loadRun(w, r, runs)
		if run == nil {
			return
		}

		points, err := curves.FindByRun(r.Context(), run.ID)
		if err != nil {
			logger.WithError(err).Error("failed to load equity curve")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		writeJSON(w, http.StatusOK, mapper.MapEquityCurveToSeries(points))
	}
}

// The result listings are read-heavy and never write, so their
// repositories serve from the read-only pool.

// DefaultListTradesHandler wires the handler to the read-only pool.
func DefaultListTradesHandler() http.HandlerFunc {
	return ListTradesHandler(
		repository.NewRunRepository().WithDB(database.ReadOnlyDB),
		repository.NewTradeRepository().WithDB(database.ReadOnlyDB),
	)
}

// DefaultListSkippedEntriesHandler wires the handler to the read-only pool.
func DefaultListSkippedEntriesHandler() http.HandlerFunc {
	return ListSkippedEntriesHandler(
		repository.NewRunRepository().WithDB(database.ReadOnlyDB),
		repository.NewSkippedEntryRepository().WithDB(database.ReadOnlyDB),
	)
}

// DefaultGetEquityCurveHandler wires the handler to the read-only pool.
func DefaultGetEquityCurveHandler() http.HandlerFunc {
	return GetEquityCurveHandler(
		repository.NewRunRepository().WithDB(database.ReadOnlyDB),
		repository.NewEquityCurveRepository().WithDB(database.ReadOnlyDB),
	)
}
