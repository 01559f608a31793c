package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"backtestapi/src/database"
	"backtestapi/src/executors"
	"backtestapi/src/server"
)

var (
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, cancel := context.WithCancel(context.Background())

	hub := server.NewHub()
	go hub.Run(ctx)

	// The worker loop shares the process so freshly submitted runs start
	// without a separate deployment. cmd's worker command runs it alone.
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := executors.StartLoop(ctx, hub); err != nil {
			logger.WithError(err).Error("Worker loop stopped with error")
		}
	}()

	server.StartServer(server.GetConfig().Port, hub)

	// The HTTP server is down; stop the worker and wait for in-flight
	// runs to settle before exiting.
	cancel()
	<-workerDone
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
