// Package cli implements the reconcile command-line tool.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vanshika/payrecon/backend/internal/app"
	"github.com/vanshika/payrecon/backend/internal/config"
	"github.com/vanshika/payrecon/backend/internal/logging"
	"github.com/vanshika/payrecon/backend/internal/syncrun"
)

var (
	verbose bool
	rootCmd *cobra.Command
)

// buildApp is replaced in tests.
var buildApp = func(ctx context.Context, stderr io.Writer) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	} else if cfg.Logging.Level == "" || cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}
	return app.Build(ctx, cfg, logging.New(cfg.Logging, stderr))
}

func init() {
	rootCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Import and reconcile payment provider statements",
		Long: `reconcile imports provider statements into the reconciliation queue, promotes matched
payments and synchronizes finalized payments with the provider statement for a date range.

Configuration comes from the same environment variables and RECON_CONFIG_FILE as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command
func Execute(version string) error {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(statsCmd)

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// withApp builds the services for one command run and closes them afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := buildApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}

func addPeriodFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "First statement day, YYYY-MM-DD (required)")
	cmd.Flags().String("to", "", "Last statement day, inclusive, YYYY-MM-DD (default: same as --from)")
	_ = cmd.MarkFlagRequired("from")
}

// periodFromFlags reads inclusive --from/--to dates in loc into a half-open period.
func periodFromFlags(cmd *cobra.Command, loc *time.Location) (syncrun.Period, error) {
	fromValue, _ := cmd.Flags().GetString("from")
	toValue, _ := cmd.Flags().GetString("to")
	return parsePeriod(fromValue, toValue, loc)
}

func parsePeriod(fromValue, toValue string, loc *time.Location) (syncrun.Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	from, err := time.ParseInLocation(time.DateOnly, fromValue, loc)
	if err != nil {
		return syncrun.Period{}, fmt.Errorf("invalid --from %q: expected YYYY-MM-DD", fromValue)
	}
	to := from
	if toValue != "" {
		if to, err = time.ParseInLocation(time.DateOnly, toValue, loc); err != nil {
			return syncrun.Period{}, fmt.Errorf("invalid --to %q: expected YYYY-MM-DD", toValue)
		}
	}
	if to.Before(from) {
		return syncrun.Period{}, fmt.Errorf("--to %s is before --from %s", toValue, fromValue)
	}
	return syncrun.Period{From: from, To: to.AddDate(0, 0, 1)}, nil
}
