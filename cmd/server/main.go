// Package main is the entry point for the target portfolio tracker.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/targeteer/targeteer/internal/config"
	"github.com/targeteer/targeteer/internal/di"
	"github.com/targeteer/targeteer/internal/scheduler"
	"github.com/targeteer/targeteer/internal/server"
	"github.com/targeteer/targeteer/pkg/logger"
)

func main() {
	// Load configuration first to get the log level.
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting targeteer")

	// Wire databases, repositories and services.
	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Background jobs: price preloading and cache cleanup.
	sched := scheduler.New(log)
	preloadJob := scheduler.NewPreloadPricesJob(
		container.TargetRepo, container.InstrumentRepo, container.MarketData, log)
	if err := sched.AddJob(cfg.PreloadSchedule, preloadJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register preload job")
	}
	cleanupJob := scheduler.NewCleanupJob(container.SnapshotRepo, container.Memory, log)
	if err := sched.AddJob(cfg.CleanupSchedule, cleanupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cleanup job")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server.
	srv := server.New(cfg, container, log)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for a shutdown signal or a server failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Stopped")
}
