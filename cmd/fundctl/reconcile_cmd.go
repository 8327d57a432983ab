package main

import (
	"time"

	"github.com/dujiao-next/referral-ledger/internal/service"

	"github.com/spf13/cobra"
)

func newReconcileCmd(state *cliState) *cobra.Command {
	var includeUsers bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute fund balances from their transactions and correct drift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			reconciler := state.container.ReconciliationService
			var report *service.ReconcileReport
			var err error
			if includeUsers {
				report, err = reconciler.ReconcileScoped(cmd.Context(), true)
			} else {
				report, err = reconciler.ReconcileFunds(cmd.Context())
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), cmdOutput{
				Command:    "reconcile",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     report,
			})
		},
	}

	cmd.Flags().BoolVar(&includeUsers, "users", false, "Also reconcile user wallets and earned totals")
	return cmd
}
