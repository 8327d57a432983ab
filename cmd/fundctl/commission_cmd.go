package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newCommissionCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "commission <order_id>",
		Short: "Show the commission record of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			record, err := state.container.CommissionService.GetByOrderID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), cmdOutput{
				Command:    "commission",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     record,
			})
		},
	}
}
