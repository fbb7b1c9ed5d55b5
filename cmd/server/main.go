/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment (.env honored)
  2. Build the zap logger
  3. Initialize the SQLite store
  4. Wire the recorder (clock window, rollup policy)
  5. Start the HTTP server with graceful shutdown

ENVIRONMENT:
  LISTEN_ADDR               HTTP listen address (default :8080)
  DATABASE_PATH             SQLite path, ":memory:" for in-memory
  REFERENCE_TIMEZONE        Fixed civil timezone for day boundaries
  FULL_DAY_THRESHOLD_HOURS  Hours required for PRESENT status
  APPEND_MAX_RETRIES        Bounded retries on serialization conflicts
  LOG_LEVEL                 zap level (debug/info/warn/error)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for
  active requests, close the database, exit.
*/
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/logging"
	"github.com/warp/attendance-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	window, err := attendance.NewClockWindow(cfg.ReferenceTimezone)
	if err != nil {
		logger.Fatal("failed to resolve reference timezone", zap.Error(err))
	}

	recorder := attendance.NewRecorder(store, store, window, logger)
	recorder.Policy = attendance.RollupPolicy{
		FullDayThreshold: attendance.NewHours(cfg.FullDayThreshold),
	}
	recorder.MaxRetries = cfg.AppendMaxRetries

	handler := api.NewHandler(store, recorder, window, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.ListenAddr),
			zap.String("timezone", cfg.ReferenceTimezone))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
