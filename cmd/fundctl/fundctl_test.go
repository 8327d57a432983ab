package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/config"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/provider"
	"github.com/dujiao-next/referral-ledger/internal/service"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupCLITest(t *testing.T) *cliState {
	t.Helper()
	dsn := fmt.Sprintf("file:fundctl_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrateDB(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	container := provider.NewContainerWithDB(&config.Config{}, db, nil)

	if _, err := container.UserService.Register(service.RegisterInput{UserID: "root"}); err != nil {
		t.Fatalf("register root failed: %v", err)
	}
	if _, err := container.UserService.Register(service.RegisterInput{UserID: "buyer", ReferrerID: "root"}); err != nil {
		t.Fatalf("register buyer failed: %v", err)
	}
	if _, err := container.CommissionService.Distribute(context.Background(), service.DistributeInput{
		OrderID:     "order-cli",
		PurchaserID: "buyer",
		OrderAmount: models.MustMoney("200"),
	}); err != nil {
		t.Fatalf("distribute failed: %v", err)
	}
	return &cliState{container: container}
}

func runCLI(t *testing.T, state *cliState, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(state)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBalanceCommand(t *testing.T) {
	state := setupCLITest(t)

	out, err := runCLI(t, state, "balance", "trust")
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if !strings.Contains(out, `"balance": "6.00"`) {
		t.Fatalf("expected trust balance 6 in output, got %s", out)
	}

	out, err = runCLI(t, state, "balance")
	if err != nil {
		t.Fatalf("balance all failed: %v", err)
	}
	if !strings.Contains(out, "development") {
		t.Fatalf("expected development fund in output, got %s", out)
	}
}

func TestWithdrawCommand(t *testing.T) {
	state := setupCLITest(t)

	if _, err := runCLI(t, state, "withdraw", "trust"); err == nil {
		t.Fatalf("expected argument count error")
	}
	if _, err := runCLI(t, state, "withdraw", "trust", "abc"); err == nil {
		t.Fatalf("expected invalid amount error")
	}
	if _, err := runCLI(t, state, "withdraw", "trust", "100"); err == nil {
		t.Fatalf("expected insufficient balance error")
	}
	out, err := runCLI(t, state, "withdraw", "trust", "2.5", "--desc", "audit payout")
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if !strings.Contains(out, `"transaction_id"`) {
		t.Fatalf("expected transaction id in output, got %s", out)
	}
	fund, err := state.container.LedgerService.GetFund("trust")
	if err != nil {
		t.Fatalf("get fund failed: %v", err)
	}
	if !fund.Balance.Equal(models.MustMoney("3.5")) {
		t.Fatalf("trust balance want 3.5 got %s", fund.Balance.String())
	}
}

func TestReconcileAndCommissionCommands(t *testing.T) {
	state := setupCLITest(t)

	out, err := runCLI(t, state, "reconcile", "--users")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !strings.Contains(out, `"users"`) {
		t.Fatalf("expected user summary in output, got %s", out)
	}

	out, err = runCLI(t, state, "commission", "order-cli")
	if err != nil {
		t.Fatalf("commission failed: %v", err)
	}
	if !strings.Contains(out, `"order_id": "order-cli"`) {
		t.Fatalf("expected order in output, got %s", out)
	}
	if _, err := runCLI(t, state, "commission", "missing"); err == nil {
		t.Fatalf("expected not found error")
	}
}
