package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"backtestapi/src/backtest"
	"backtestapi/src/database"
	"backtestapi/src/executors"
	"backtestapi/src/model"
	"backtestapi/src/repository"
)

// runEventDeleted is pushed on the event stream when a run is removed;
// it never appears in the database.
const runEventDeleted = "deleted"

type runEventPublisher interface {
	PublishRunEvent(runID, status string)
}

type runCreator interface {
	Create(ctx context.Context, run *model.BacktestRun) error
}

type runFinder interface {
	FindByID(ctx context.Context, id string) (*model.BacktestRun, error)
}

type runSearcher interface {
	Search(ctx context.Context, options repository.RunSearchOptions) ([]model.BacktestRun, error)
}

type runDeleter interface {
	Delete(ctx context.Context, runID string) (bool, error)
}

type submitRunRequest struct {
	Strategy       model.StrategyConfig `json:"strategy"`
	Symbols        []string             `json:"symbols"`
	StartDate      time.Time            `json:"start_date"`
	EndDate        time.Time            `json:"end_date"`
	InitialCapital decimal.Decimal      `json:"initial_capital"`
}

// SubmitRunHandler validates a submitted run and persists it as
// pending; the worker loop picks it up from there. Invalid configs are
// rejected with the validation message verbatim and nothing persisted.
func SubmitRunHandler(repo runCreator, events runEventPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		run := &model.BacktestRun{
			ID:             uuid.NewString(),
			Status:         model.RunStatusPending,
			Strategy:       req.Strategy,
			Symbols:        req.Symbols,
			StartDate:      req.StartDate,
			EndDate:        req.EndDate,
			InitialCapital: req.InitialCapital,
		}

		if err := backtest.ValidateRun(run); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := repo.Create(r.Context(), run); err != nil {
			logger.WithError(err).Error("failed to create backtest run")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if events != nil {
			events.PublishRunEvent(run.ID, model.RunStatusPending)
		}
		writeJSON(w, http.StatusAccepted, run)
	}
}

// SearchRunsHandler lists runs newest first with an optional status
// filter and page/pageSize pagination.
func SearchRunsHandler(repo runSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status *string
		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			switch statusParam {
			case model.RunStatusPending, model.RunStatusRunning, model.RunStatusCompleted, model.RunStatusFailed:
				status = &statusParam
			default:
				writeError(w, http.StatusBadRequest, "invalid status")
				return
			}
		}

		page, pageSize, err := parsePaging(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		runs, err := repo.Search(r.Context(), repository.RunSearchOptions{
			Status: status,
			Limit:  pageSize,
			Offset: (page - 1) * pageSize,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search backtest runs")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if runs == nil {
			runs = []model.BacktestRun{}
		}

		writeJSON(w, http.StatusOK, runs)
	}
}

// GetRunHandler returns one run in full; metrics and final capital stay
// null until the run completes.
func GetRunHandler(repo runFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")

		run, err := repo.FindByID(r.Context(), runID)
		if err != nil {
			logger.WithError(err).Error("failed to load backtest run")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}

		writeJSON(w, http.StatusOK, run)
	}
}

// DeleteRunHandler cancels the run if it is executing on this worker,
// then removes the run and its children. 204 regardless of whether the
// run existed.
func DeleteRunHandler(repo runDeleter, cancelRun func(runID string) bool, events runEventPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")

		if cancelRun != nil && cancelRun(runID) {
			logger.WithField("run_id", runID).Info("Cancelled in-flight run before delete")
		}

		deleted, err := repo.Delete(r.Context(), runID)
		if err != nil {
			logger.WithError(err).Error("failed to delete backtest run")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if deleted && events != nil {
			events.PublishRunEvent(runID, runEventDeleted)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DefaultSubmitRunHandler wires the handler to the production repository implementation.
func DefaultSubmitRunHandler(events runEventPublisher) http.HandlerFunc {
	return SubmitRunHandler(repository.NewRunRepository(), events)
}

// DefaultSearchRunsHandler wires the handler to the read-only pool;
// listings never write.
func DefaultSearchRunsHandler() http.HandlerFunc {
	return SearchRunsHandler(repository.NewRunRepository().WithDB(database.ReadOnlyDB))
}

// DefaultGetRunHandler wires the handler to the read-only pool.
func DefaultGetRunHandler() http.HandlerFunc {
	return GetRunHandler(repository.NewRunRepository().WithDB(database.ReadOnlyDB))
}

// DefaultDeleteRunHandler wires the handler to the production repository
// and the worker's in-flight cancel.
func DefaultDeleteRunHandler(events runEventPublisher) http.HandlerFunc {
	return DeleteRunHandler(repository.NewRunRepository(), executors.CancelRun, events)
}
