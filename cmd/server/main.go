package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/go-santa/internal/api"
	"github.com/npezzotti/go-santa/internal/config"
	"github.com/npezzotti/go-santa/internal/database"
	"github.com/npezzotti/go-santa/internal/draw"
	"github.com/npezzotti/go-santa/internal/server"
	"github.com/npezzotti/go-santa/internal/stats"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

func main() {
	cobra.CheckErr(newCmd().ExecuteContext(context.Background()))
}

func openRepository(cfg *config.Config, logger logrus.FieldLogger) (database.Repository, error) {
	if cfg.InMemory() {
		logger.Warn("using in-memory store, data is lost on exit")
		return database.NewMemoryRepository(), nil
	}

	repo, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return repo, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := cfg.NewLogger(os.Stderr)

	repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.WithError(err).Error("db close")
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	registry := server.NewRegistry(logger, statsUpdater)
	bus := server.NewEventBus(registry, logger, statsUpdater)
	rooms := server.NewCoordinator(logger, repo, registry, bus, statsUpdater, server.Options{
		AllowRedraw:   cfg.Draw.AllowRedraw,
		RetainResults: cfg.Draw.RetainResults,
		OwnerFirst:    cfg.OwnerFirst,
		PublicURL:     cfg.PublicURL,
		Engine:        draw.NewEngine(draw.WithMaxAttempts(cfg.Draw.MaxAttempts)),
	})

	srv := api.NewSantaApp(mux, logger, rooms, repo, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server")
		}
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
