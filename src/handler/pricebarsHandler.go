package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"backtestapi/src/database"
	"backtestapi/src/model"
	"backtestapi/src/repository"
)

const dateLayout = "2006-01-02"

type priceBarFinder interface {
	FindRange(ctx context.Context, symbol string, from, to time.Time) ([]model.PriceBar, error)
}

type symbolLister interface {
	Symbols(ctx context.Context) ([]string, error)
}

// GetPriceBarsHandler returns stored daily bars for one symbol, for
// charting. start/end use the 2006-01-02 layout; the default window is
// the last year.
func GetPriceBarsHandler(repo priceBarFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := chi.URLParam(r, "symbol")
		if symbol == "" {
			writeError(w, http.StatusBadRequest, "symbol required")
			return
		}

		end := time.Now().UTC().Truncate(24 * time.Hour)
		if endParam := r.URL.Query().Get("end"); endParam != "" {
			parsed, err := time.Parse(dateLayout, endParam)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid end")
				return
			}
			end = parsed
		}

		start := end.AddDate(-1, 0, 0)
		if startParam := r.URL.Query().Get("start"); startParam != "" {
			parsed, err := time.Parse(dateLayout, startParam)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid start")
				return
			}
			start = parsed
		}

		if start.After(end) {
			writeError(w, http.StatusBadRequest, "start must not be after end")
			return
		}

		bars, err := repo.FindRange(r.Context(), symbol, start, end)
		if err != nil {
			logger.WithError(err).Error("failed to load price bars")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if bars == nil {
			bars = []model.PriceBar{}
		}

		writeJSON(w, http.StatusOK, bars)
	}
}

// ListSymbolsHandler returns every symbol with at least one stored bar,
// sorted, for the dashboard's symbol picker.
func ListSymbolsHandler(repo symbolLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbols, err := repo.Symbols(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list symbols")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if symbols == nil {
			symbols = []string{}
		}

		writeJSON(w, http.StatusOK, symbols)
	}
}

// DefaultGetPriceBarsHandler wires the handler to the read-only pool;
// bar writes belong to the ingest commands.
func DefaultGetPriceBarsHandler() http.HandlerFunc {
	return GetPriceBarsHandler(repository.NewPriceBarRepository().WithDB(database.ReadOnlyDB))
}

// DefaultListSymbolsHandler wires the handler to the read-only pool.
func DefaultListSymbolsHandler() http.HandlerFunc {
	return ListSymbolsHandler(repository.NewPriceBarRepository().WithDB(database.ReadOnlyDB))
}
