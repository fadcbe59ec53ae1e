package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vanshika/payrecon/backend/internal/app"
	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/syncrun"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the changes a statement sync would make for a date range",
	RunE:  runPreview,
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply statement changes for a date range",
	Long: `apply computes the change list for the range and applies it in chunks.

Without --uid only safe changes are applied. Dangerous changes (deletes, or changes
that cancel orders, subscriptions or access) are applied only when named with --uid.`,
	RunE: runApply,
}

func init() {
	addPeriodFlags(previewCmd)
	previewCmd.Flags().Bool("diff", false, "Print field-level differences for updates")

	addPeriodFlags(applyCmd)
	applyCmd.Flags().StringSlice("uid", nil, "Apply only these transaction uids (repeatable, comma-separated)")
	applyCmd.Flags().Int("retries", 1, "Re-submit failed chunks up to this many extra times")
}

func runPreview(cmd *cobra.Command, args []string) error {
	showDiff, _ := cmd.Flags().GetBool("diff")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		period, err := periodFromFlags(cmd, a.Location)
		if err != nil {
			return err
		}
		snap, err := a.Runner.Preview(ctx, period)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printChanges(out, snap.Changes, showDiff)
		printSummary(out, snap)
		return nil
	})
}

func runApply(cmd *cobra.Command, args []string) error {
	uids, _ := cmd.Flags().GetStringSlice("uid")
	retries, _ := cmd.Flags().GetInt("retries")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		period, err := periodFromFlags(cmd, a.Location)
		if err != nil {
			return err
		}
		if _, err := a.Runner.Preview(ctx, period); err != nil {
			return err
		}
		snap, err := a.Runner.Apply(ctx, uids)
		if err != nil {
			return err
		}
		for i := 0; i < retries && snap.FailedChunks() > 0; i++ {
			fmt.Fprintf(cmd.ErrOrStderr(), "retrying %d failed chunks\n", snap.FailedChunks())
			if snap, err = a.Runner.RetryFailed(ctx); err != nil {
				return err
			}
		}
		printRun(cmd.OutOrStdout(), snap)
		if snap.State != syncrun.StateDone {
			return fmt.Errorf("sync finished %s: %d applied, %d failed", snap.State, snap.Applied, snap.Errors)
		}
		return nil
	})
}

func printChanges(w io.Writer, changes []domain.SyncChange, showDiff bool) {
	if len(changes) == 0 {
		fmt.Fprintln(w, "No changes.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tACTION\tAMOUNT\tSTATUS\tDANGER")
	for _, c := range changes {
		tx := c.Statement
		if tx == nil {
			tx = c.Internal
		}
		amount, status := "", ""
		if tx != nil {
			amount = tx.Amount.StringFixed(2) + " " + tx.Currency
			status = string(tx.StatusNormalized)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.UID, c.Action, amount, status, danger(c))
		if showDiff {
			for _, d := range c.Differences {
				fmt.Fprintf(tw, "  %s\t%s -> %s\t\t\t\n", d.Field, d.Before, d.After)
			}
		}
	}
	_ = tw.Flush()
}

func danger(c domain.SyncChange) string {
	if !c.IsDangerous {
		return ""
	}
	var parts []string
	if c.Action == domain.ActionDelete {
		parts = append(parts, "delete")
	}
	if n := len(c.Cascade.OrdersToCancel); n > 0 {
		parts = append(parts, fmt.Sprintf("cancels %d orders", n))
	}
	if n := len(c.Cascade.SubscriptionsToCancel); n > 0 {
		parts = append(parts, fmt.Sprintf("cancels %d subscriptions", n))
	}
	if n := len(c.Cascade.EntitlementsToRevoke); n > 0 {
		parts = append(parts, fmt.Sprintf("revokes %d entitlements", n))
	}
	if c.Cascade.RevokesChannelAccess {
		parts = append(parts, "revokes channel access")
	}
	if n := len(c.Cascade.OrdersToUpdate); n > 0 {
		parts = append(parts, fmt.Sprintf("updates %d orders", n))
	}
	return strings.Join(parts, ", ")
}

func printSummary(w io.Writer, snap syncrun.Snapshot) {
	s := snap.Summary
	fmt.Fprintf(w, "\n%d creates, %d updates, %d deletes (%d safe, %d dangerous)\n",
		s.Creates, s.Updates, s.Deletes, s.Safe, s.Dangerous)
}

func printRun(w io.Writer, snap syncrun.Snapshot) {
	fmt.Fprintf(w, "batch %s: %s\n", snap.BatchID, snap.State)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHUNK\tSTATUS\tUIDS\tAPPLIED\tATTEMPTS\tERROR")
	for _, c := range snap.Chunks {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\n", c.Index, c.Status, len(c.UIDs), c.Applied, c.Attempts, c.Error)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "applied %d, failed %d\n", snap.Applied, snap.Errors)
	if len(snap.FailedUIDs) > 0 {
		fmt.Fprintf(w, "failed uids: %s\n", strings.Join(snap.FailedUIDs, ", "))
	}
}
