package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"billflow/internal/app"
	"billflow/internal/logging"
	"billflow/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Opener builds the application for one command run and returns its cleanup.
type Opener func(ctx context.Context) (*app.App, func(), error)

// NewRootCmd returns the reconcile command tree. open is only called by commands that
// need the database, so --help works without one.
func NewRootCmd(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "reconcile",
		Short:         "Reconcile local payments with the Paystack gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newPaymentsCmd(open), newRecoveriesCmd(open), newCleanupCmd(open))
	return root
}

func withApp(cmd *cobra.Command, open Opener, fn func(ctx context.Context, a *app.App) error) error {
	ctx := logging.WithCorrelationID(cmd.Context(), "cli-"+uuid.NewString()[:8])
	a, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, a)
}

func newPaymentsCmd(open Opener) *cobra.Command {
	var (
		days    int
		status  string
		workers int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "Reconcile recent payments, then run one recovery sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				report, err := a.Reconciliation.ReconcileBatch(ctx, service.Filter{Days: days, Status: status, Workers: workers})
				if err != nil {
					return err
				}
				stats, err := a.Recovery.ProcessPendingRecoveries(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"reconciliation": report, "recovery": stats})
				}
				printReport(cmd.OutOrStdout(), report, stats)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Reconcile payments created in the last N days")
	cmd.Flags().StringVar(&status, "status", "pending", "Payment status to reconcile: pending, processing, failed or all")
	cmd.Flags().IntVar(&workers, "workers", 1, "Payments reconciled in parallel")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func newRecoveriesCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "recoveries",
		Short: "Process due payment recoveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				stats, err := a.Recovery.ProcessPendingRecoveries(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recovery: attempted=%d successful=%d failed=%d\n", stats.Attempted, stats.Successful, stats.Failed)
				return nil
			})
		},
	}
}

func newCleanupCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired idempotency keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				n, err := a.Idempotency.PurgeExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired idempotency keys\n", n)
				return nil
			})
		},
	}
}

func printReport(w io.Writer, r *service.BatchReport, stats service.RecoveryStats) {
	for _, item := range r.Items {
		line := fmt.Sprintf("payment %d", item.PaymentID)
		if item.Reference != "" {
			line += " (" + item.Reference + ")"
		}
		line += ": " + item.Status
		if item.Error != "" {
			line += " - " + item.Error
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "Reconciled %d payments: verified=%d mismatch=%d failed=%d\n", r.Total, r.Verified, r.Mismatch, r.Failed)
	fmt.Fprintf(w, "Recovery: attempted=%d successful=%d failed=%d\n", stats.Attempted, stats.Successful, stats.Failed)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
