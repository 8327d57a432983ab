package main

import (
	"fmt"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/models"

	"github.com/spf13/cobra"
)

func newWithdrawCmd(state *cliState) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "withdraw <fund> <amount>",
		Short: "Withdraw from the trust or development fund",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := models.NewMoneyFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			start := time.Now()
			result, err := state.container.LedgerService.Withdraw(cmd.Context(), args[0], amount, description)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), cmdOutput{
				Command:    "withdraw",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     result,
			})
		},
	}

	cmd.Flags().StringVar(&description, "desc", "", "Withdrawal description")
	return cmd
}
