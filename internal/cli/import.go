package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vanshika/payrecon/backend/internal/app"
	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/service"
)

var importCmd = &cobra.Command{
	Use:   "import [file...]",
	Short: "Import provider statement files (.csv, .xlsx) into the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Fetch a date range from the provider API into the queue",
	RunE:  runPoll,
}

func init() {
	addPeriodFlags(pollCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			report, err := importFile(ctx, a.Imports, path)
			if err != nil {
				failed++
				fmt.Fprintf(out, "%s: %v\n", filepath.Base(path), err)
				continue
			}
			printImportReport(out, filepath.Base(path), report)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed to import", failed, len(args))
		}
		return nil
	})
}

func importFile(ctx context.Context, imports *service.ImportService, path string) (service.ImportReport, error) {
	file, err := os.Open(path)
	if err != nil {
		return service.ImportReport{}, err
	}
	defer file.Close()
	return imports.Import(ctx, filepath.Base(path), file)
}

func runPoll(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		period, err := periodFromFlags(cmd, a.Location)
		if err != nil {
			return err
		}
		report, err := a.Imports.Poll(ctx, period.From, period.To)
		if err != nil {
			return err
		}
		printImportReport(cmd.OutOrStdout(), "provider api", report)
		return nil
	})
}

func printImportReport(w io.Writer, name string, r service.ImportReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tbatch %s\n", name, r.BatchID)
	fmt.Fprintf(tw, "  rows\t%d\n", r.Rows)
	fmt.Fprintf(tw, "  parsed\t%d\n", r.Parsed)
	fmt.Fprintf(tw, "  skipped\t%d\n", r.Skipped)
	fmt.Fprintf(tw, "  fees\t%d\n", r.Fees)
	fmt.Fprintf(tw, "  queued\t%d\n", r.Queued)

	methods := make([]string, 0, len(r.Matched))
	for m := range r.Matched {
		methods = append(methods, string(m))
	}
	sort.Strings(methods)
	for _, m := range methods {
		fmt.Fprintf(tw, "  matched by %s\t%d\n", m, r.Matched[domain.MatchMethod(m)])
	}
	fmt.Fprintf(tw, "  unmatched\t%d\n", r.Unmatched)
	_ = tw.Flush()
}
