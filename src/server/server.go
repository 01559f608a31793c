package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"backtestapi/src/handler"
)

// StartServer registers the API routes and blocks until SIGINT or SIGTERM,
// then shuts the server down gracefully.
func StartServer(port string, hub *Hub) {
	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("Failed to write healthcheck response")
		}
	})

	r.Route("/backtest/runs", func(r chi.Router) {
		r.Post("/", handler.DefaultSubmitRunHandler(hub))
		r.Get("/", handler.DefaultSearchRunsHandler())
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", handler.DefaultGetRunHandler())
			r.Delete("/", handler.DefaultDeleteRunHandler(hub))
			r.Get("/trades", handler.DefaultListTradesHandler())
			r.Get("/skipped-entries", handler.DefaultListSkippedEntriesHandler())
			r.Get("/equity-curve", handler.DefaultGetEquityCurveHandler())
			r.Get("/events", HandleRunEvents(hub))
		})
	})

	r.Get("/pricebars/{symbol}", handler.DefaultGetPriceBarsHandler())
	r.Get("/symbols", handler.DefaultListSymbolsHandler())

	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
