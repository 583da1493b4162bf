/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment, see config/config.go)
  2. Build the zerolog logger
  3. Initialize SQLite store and the projection cache
  4. Wire ledger, inventory service and demand runner
  5. Configure HTTP router
  6. Start the classification scheduler (if enabled)
  7. Start server with graceful shutdown

ENVIRONMENT:
  SERVER_PORT                  HTTP server port (default: 8080)
  DB_PATH                      SQLite database path (default: stock.db)
                               Use ":memory:" for in-memory database
  LOG_LEVEL, APP_ENV           Logger verbosity and format
  EXCEPTION_POLICY             additive | reject
  CACHE_ENABLED, REDIS_*       Projection cache backend
  CLASSIFIER_*                 Demand classification defaults and schedule

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close cache and database connections
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
  - cmd/ledgerctl: Command line client for the same operations
*/
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/stock-ledger/api"
	"github.com/warp/stock-ledger/cache"
	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/demand"
	"github.com/warp/stock-ledger/inventory"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/logger"
	"github.com/warp/stock-ledger/metrics"
	"github.com/warp/stock-ledger/store/sqlite"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to initialize database")
	}
	defer store.Close()

	policy, err := inventory.ParseExceptionPolicy(cfg.App.ExceptionPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	m := metrics.NewRegistry()
	projections := cache.New(cfg.Cache, m, log)
	if c, ok := projections.(io.Closer); ok {
		defer c.Close()
	}

	l := ledger.New(store, ledger.WithCache(projections), ledger.WithLogger(log))
	svc := inventory.NewService(l,
		inventory.WithLogger(log),
		inventory.WithMetrics(m),
		inventory.WithExceptionPolicy(policy),
	)
	runner := demand.NewRunner(l, log, m)
	settings := demand.SettingsFrom(cfg.Classifier)

	// Initialize handler
	handler := api.NewHandler(svc, runner, settings, m, log).WithResetter(store)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	scheduler := api.NewClassificationScheduler(runner, settings, time.Duration(cfg.Classifier.IntervalMinutes)*time.Minute, log)
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("db", cfg.Database.Path).
			Str("exception_policy", string(policy)).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
