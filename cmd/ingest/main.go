package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vanshika/payrecon/backend/internal/app"
	"github.com/vanshika/payrecon/backend/internal/config"
	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/logging"
	"github.com/vanshika/payrecon/backend/internal/service"
)

var (
	errMissingDataset = errors.New("dataset not found")
)

func main() {
	var (
		datasetDir    = flag.String("dataset-dir", "./data", "Directory containing profiles.json, orders.json and statement.csv")
		profilesPath  = flag.String("profiles", "", "Path to profiles.json (overrides dataset-dir)")
		ordersPath    = flag.String("orders", "", "Path to orders.json (overrides dataset-dir)")
		statementPath = flag.String("statement", "", "Path to a statement file to import after seeding (default: dataset-dir/statement.csv if present)")
		workers       = flag.Int("workers", 4, "Number of concurrent batch writers")
		batchSize     = flag.Int("batch-size", 500, "Records per write statement")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, nil).With("component", "ingest")

	profileFile, err := resolve(*datasetDir, *profilesPath, "profiles.json")
	if err != nil {
		logger.Error("dataset resolution failed", "error", err)
		os.Exit(1)
	}
	orderFile, err := resolve(*datasetDir, *ordersPath, "orders.json")
	if err != nil {
		logger.Error("dataset resolution failed", "error", err)
		os.Exit(1)
	}

	var profiles []domain.Profile
	if err := loadJSON(profileFile, &profiles); err != nil {
		logger.Error("failed to load profiles", "error", err, "path", profileFile)
		os.Exit(1)
	}
	var orders []domain.Order
	if err := loadJSON(orderFile, &orders); err != nil {
		logger.Error("failed to load orders", "error", err, "path", orderFile)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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

	seeder := service.NewSeeder(services.Repo, *workers, *batchSize)

	start := time.Now()
	logger.Info("seeding profiles", "count", len(profiles), "workers", *workers)
	if _, err := seeder.SeedProfiles(ctx, profiles); err != nil {
		logger.Error("profile seeding failed", "error", err)
		os.Exit(1)
	}

	logger.Info("seeding orders", "count", len(orders))
	if _, err := seeder.SeedOrders(ctx, orders); err != nil {
		logger.Error("order seeding failed", "error", err)
		os.Exit(1)
	}

	statement := *statementPath
	if statement == "" {
		candidate := filepath.Join(*datasetDir, "statement.csv")
		if _, err := os.Stat(candidate); err == nil {
			statement = candidate
		}
	}
	if statement != "" {
		if err := importStatement(ctx, services.Imports, statement); err != nil {
			logger.Error("statement import failed", "error", err, "path", statement)
			os.Exit(1)
		}
	}

	logger.Info("ingestion complete", "duration", time.Since(start).String(), "profiles", len(profiles), "orders", len(orders))
}

func importStatement(ctx context.Context, imports *service.ImportService, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	report, err := imports.Import(ctx, filepath.Base(path), file)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Imported %s: %d rows, %d queued, %d fees, %d unmatched\n",
		filepath.Base(path), report.Rows, report.Queued, report.Fees, report.Unmatched)
	return nil
}

func resolve(baseDir, explicitPath, fallbackFile string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("stat %s: %w", explicitPath, err)
		}
		return explicitPath, nil
	}
	path := filepath.Join(baseDir, fallbackFile)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", errMissingDataset, path)
	}
	return path, nil
}

func loadJSON(path string, target any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
