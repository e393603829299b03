package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ispnexus/webhook-service/internal/config"
	"github.com/ispnexus/webhook-service/internal/logging"
	"github.com/ispnexus/webhook-service/internal/server"
	"github.com/ispnexus/webhook-service/internal/storage"
)

func main() {
	// Load Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("webhook-service", logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// Apply schema migrations before opening the pool
	if err := storage.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("failed to run database migrations")
	}

	// Initialize Database Connection
	db, err := storage.NewPostgresDB(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// initialize server + delivery workers
	srv := server.New(cfg, db, logger)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	srv.StartWorkers(workerCtx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// graceful shutdown
	go func() {
		logger.Info().Str("host", cfg.Host).Str("port", cfg.Port).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("server shutting down")

	// Stop intake first, then let in-flight deliveries finish. Anything
	// interrupted mid-claim is recovered by lease expiry after restart.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	stopWorkers()
	srv.WaitWorkers()

	logger.Info().Msg("server exited")
}
