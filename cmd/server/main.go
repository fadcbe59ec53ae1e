package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vanshika/payrecon/backend/internal/app"
	"github.com/vanshika/payrecon/backend/internal/config"
	"github.com/vanshika/payrecon/backend/internal/logging"
	"github.com/vanshika/payrecon/backend/internal/server"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, nil)

	services, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise services", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(context.Background()); err != nil {
			logger.Warn("closing services failed", "error", err)
		}
	}()

	deps := server.APIDependencies{
		Imports:        services.Imports,
		Queries:        services.Queries,
		Promoter:       services.Promoter,
		Sync:           services.Runner,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		Location:       services.Location,
	}
	checks := server.HealthChecks{{Name: "graph", Target: services.Repo}}
	// A nil *audit.Store must not become a non-nil interface.
	if services.Audit != nil {
		deps.Audit = services.Audit
		checks = append(checks, server.HealthCheck{Name: "audit", Target: services.Audit})
	}

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           checks,
		API:              server.NewAPIHandlers(logger, deps),
		AllowedOrigins:   cfg.HTTP.AllowedOrigins(),
		AllowCredentials: true,
	})

	srv := server.New(logger, cfg.HTTP, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
