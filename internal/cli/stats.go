package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vanshika/payrecon/backend/internal/app"
	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/service"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize queued and finalized transactions for a date range",
	RunE:  runStats,
}

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Finalize matched successful queue items into payments",
	RunE:  runPromote,
}

func init() {
	addPeriodFlags(statsCmd)
	statsCmd.Flags().String("source", "", "Limit to queue or payment records")
}

func runStats(cmd *cobra.Command, args []string) error {
	source, _ := cmd.Flags().GetString("source")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		period, err := periodFromFlags(cmd, a.Location)
		if err != nil {
			return err
		}
		report, err := a.Queries.Stats(ctx, service.StatsParams{From: &period.From, To: &period.To, Source: source})
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), report)
		return nil
	})
}

func runPromote(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		r, err := a.Promoter.PromoteMatched(ctx, nil, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "considered %d: promoted %d, refunds %d, skipped %d, deferred %d, failed %d\n",
			r.Considered, r.Promoted, r.Refunds, r.Skipped, r.Deferred, r.Failed)
		if r.Failed > 0 {
			return fmt.Errorf("%d queue items failed to promote", r.Failed)
		}
		return nil
	})
}

func printStats(w io.Writer, r service.StatsReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tCOUNT\tAMOUNT\t")
	row := func(name string, b domain.Bucket) {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", name, b.Count, b.Amount.StringFixed(2))
	}
	row("successful", r.Stats.Successful)
	row("refunded", r.Stats.Refunded)
	row("cancelled", r.Stats.Cancelled)
	row("failed", r.Stats.Failed)
	row("pending", r.Stats.Pending)
	row("fees", r.Stats.Fees)
	fmt.Fprintf(tw, "total\t%d\t\t\n", r.Stats.Total)
	fmt.Fprintf(tw, "commission\t\t%s\t\n", r.Stats.Commission.StringFixed(2))
	fmt.Fprintf(tw, "net\t\t%s\t\n", r.Net.StringFixed(2))
	_ = tw.Flush()
}
