package main

import (
	"github.com/dujiao-next/referral-ledger/internal/app"
	"github.com/dujiao-next/referral-ledger/internal/config"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/provider"

	"github.com/spf13/cobra"
)

// cliState 子命令共享的依赖；测试时可预先注入容器
type cliState struct {
	container *provider.Container
}

func newRootCmd(state *cliState) *cobra.Command {
	if state == nil {
		state = &cliState{}
	}
	cmd := &cobra.Command{
		Use:           "fundctl",
		Short:         "Operator tools for the referral commission ledger",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if state.container != nil {
				return nil
			}
			cfg := config.Load()
			logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
			if err := app.PrepareDatabase(cfg); err != nil {
				return err
			}
			state.container = provider.NewContainerWithDB(cfg, models.DB, nil)
			return nil
		},
	}
	cmd.AddCommand(newReconcileCmd(state))
	cmd.AddCommand(newWithdrawCmd(state))
	cmd.AddCommand(newBalanceCmd(state))
	cmd.AddCommand(newCommissionCmd(state))
	return cmd
}
