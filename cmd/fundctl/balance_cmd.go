package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newBalanceCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [fund]",
		Short: "Show the balance of one fund or all funds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			var result any
			if len(args) == 1 {
				fund, err := state.container.LedgerService.GetFund(args[0])
				if err != nil {
					return err
				}
				result = fund
			} else {
				funds, err := state.container.LedgerService.ListFunds()
				if err != nil {
					return err
				}
				result = funds
			}
			return writeJSON(cmd.OutOrStdout(), cmdOutput{
				Command:    "balance",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     result,
			})
		},
	}
}
