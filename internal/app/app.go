// Package app wires configuration into the services shared by the HTTP server
// and the command-line tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vanshika/payrecon/backend/internal/audit"
	"github.com/vanshika/payrecon/backend/internal/classify"
	"github.com/vanshika/payrecon/backend/internal/config"
	"github.com/vanshika/payrecon/backend/internal/functions"
	"github.com/vanshika/payrecon/backend/internal/graph"
	"github.com/vanshika/payrecon/backend/internal/ingest"
	"github.com/vanshika/payrecon/backend/internal/provider"
	"github.com/vanshika/payrecon/backend/internal/repository"
	"github.com/vanshika/payrecon/backend/internal/retry"
	"github.com/vanshika/payrecon/backend/internal/service"
	"github.com/vanshika/payrecon/backend/internal/syncrun"
)

// App holds the wired services. Close releases the graph driver and audit log.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Graph    graph.Client
	Repo     *repository.Repository
	Imports  *service.ImportService
	Queries  *service.QueryService
	Promoter *service.Promoter
	Runner   *syncrun.Runner
	Audit    *audit.Store
	// Location is the provider timezone calendar dates are interpreted in.
	Location *time.Location
}

// Build connects to the graph store, ensures its schema and assembles the services.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	client, err := buildGraphClient(ctx, logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("create graph client: %w", err)
	}
	return New(ctx, cfg, logger, client)
}

// New assembles the services over an existing graph client. The App owns the
// client and closes it, including when New fails.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, client graph.Client) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Graph: client}
	if err := a.wire(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	a.Repo = repository.New(a.Graph)
	if err := a.Repo.EnsureSchema(ctx); err != nil {
		return err
	}

	loc, err := cfg.Provider.Location()
	if err != nil {
		return fmt.Errorf("provider timezone: %w", err)
	}
	a.Location = loc
	parser := ingest.NewParser(cfg.Provider.Name, cfg.Provider.Currency, loc)
	fees := classify.FeePolicy{MinAmount: cfg.Provider.FeeMinAmount(), Currency: cfg.Provider.Currency}
	policy := retry.Policy{
		MaxAttempts: cfg.Sync.MaxAttempts,
		BaseDelay:   cfg.Sync.BaseDelay,
		Multiplier:  cfg.Sync.Multiplier,
		MaxDelay:    cfg.Sync.MaxDelay,
	}

	// Left as a nil interface unless the API is configured.
	var fetcher service.Fetcher
	if cfg.Provider.APIURL != "" {
		fetcher = provider.NewClient(provider.Config{
			BaseURL:  cfg.Provider.APIURL,
			ShopID:   cfg.Provider.ShopID,
			Secret:   cfg.Provider.APISecret,
			PageSize: cfg.Provider.PageSize,
			Policy:   policy,
		}, parser, nil)
		a.Logger.Info("provider polling enabled", "url", cfg.Provider.APIURL)
	}

	a.Imports = service.NewImportService(a.Repo, parser, service.ImportOptions{
		Fees:          fees,
		WebhookSecret: cfg.Provider.WebhookSecret,
		Fetcher:       fetcher,
		Logger:        a.Logger,
	})
	a.Queries = service.NewQueryService(a.Repo, cfg.Provider.Name)
	a.Promoter = service.NewPromoter(a.Repo, cfg.Provider.Name, cfg.Sync.PromotionWorkers, a.Logger)

	var applier syncrun.Applier
	switch cfg.Sync.Applier {
	case config.ApplierFunction:
		invoker := functions.NewClient(cfg.Functions.BaseURL, cfg.Functions.APIKey, &http.Client{Timeout: cfg.Functions.Timeout})
		applier = syncrun.NewFunctionApplier(invoker, cfg.Functions.SyncFunction)
	default:
		applier = service.NewRepositoryApplier(a.Repo, cfg.Provider.Name)
	}

	opts := syncrun.Options{
		BatchSize: cfg.Sync.BatchSize,
		Policy:    policy,
		Logger:    a.Logger,
	}
	if cfg.Audit.Path != "" {
		store, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		a.Audit = store
		opts.Auditor = store
	}

	loader := service.NewStatementLoader(a.Repo, fetcher, fees, cfg.Provider.Name)
	a.Runner = syncrun.NewRunner(loader, applier, opts)
	a.Logger.Info("services ready", "provider", cfg.Provider.Name, "applier", cfg.Sync.Applier, "audit", cfg.Audit.Path != "")
	return nil
}

// Close releases held resources.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Audit != nil {
		errs = append(errs, a.Audit.Close())
	}
	if a.Graph != nil {
		errs = append(errs, a.Graph.Close(ctx))
	}
	return errors.Join(errs...)
}

func buildGraphClient(ctx context.Context, logger *slog.Logger, cfg config.Config) (graph.Client, error) {
	if cfg.Graph.URI == "" {
		return nil, graph.ErrMissingURI
	}

	opts := graph.Options{
		URI:            cfg.Graph.URI,
		Database:       cfg.Graph.Database,
		Username:       cfg.Graph.Username,
		Password:       cfg.Graph.Password,
		MaxConnections: cfg.Graph.MaxConnections,
		TxTimeout:      cfg.Graph.TxTimeout,
	}
	client, err := graph.NewNeo4jClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to graph", "uri", cfg.Graph.URI, "database", cfg.Graph.Database)
	return client, nil
}
