package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/repository"
)

func TestWalletWithdrawAppendsEarningRow(t *testing.T) {
	env := setupServiceTest(t, "wallet_withdraw")
	a := insertUser(t, env.db, "a", nil, nil)
	buyer := insertUser(t, env.db, "buyer", a, a)
	if _, err := env.commissions.Distribute(context.Background(), DistributeInput{
		OrderID:     "order-wallet",
		PurchaserID: buyer.ID,
		OrderAmount: models.MustMoney("100"),
	}); err != nil {
		t.Fatalf("distribute failed: %v", err)
	}

	if _, _, err := env.wallets.Withdraw(WalletWithdrawInput{UserID: a.ID, Amount: models.MustMoney("3.01")}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if _, _, err := env.wallets.Withdraw(WalletWithdrawInput{UserID: a.ID, Amount: models.ZeroMoney()}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, _, err := env.wallets.Withdraw(WalletWithdrawInput{UserID: "ghost", Amount: models.MustMoney("1")}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}

	user, txn, err := env.wallets.Withdraw(WalletWithdrawInput{UserID: a.ID, Amount: models.MustMoney("2")})
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	assertMoney(t, "wallet", user.Wallet, "1")
	assertMoney(t, "txn amount", txn.Amount, "-2")
	if txn.Type != constants.EarningTxnTypeWalletWithdrawal || txn.Remark != "admin wallet withdrawal" {
		t.Fatalf("unexpected earning row: %+v", txn)
	}
	// 出款不影响累计收益
	assertMoney(t, "direct earned", reloadUser(t, env.db, a.ID).DirectCommissionEarned, "3")

	rows, total, err := env.wallets.ListEarnings(repository.EarningTransactionListFilter{UserID: a.ID})
	if err != nil {
		t.Fatalf("list earnings failed: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("expected 2 earning rows, got %d", total)
	}
}

func TestReconcileUserEarningsCorrectsDrift(t *testing.T) {
	env := setupServiceTest(t, "reconcile_users")
	chain := insertChain(t, env.db, "r", 4)
	buyer := insertUser(t, env.db, "buyer", chain[3], chain[3])
	if _, err := env.commissions.Distribute(context.Background(), DistributeInput{
		OrderID:     "order-reconcile",
		PurchaserID: buyer.ID,
		OrderAmount: models.MustMoney("1000"),
	}); err != nil {
		t.Fatalf("distribute failed: %v", err)
	}

	if err := env.db.Model(&models.User{}).Where("id = ?", chain[2].ID).
		Updates(map[string]interface{}{"wallet": models.MustMoney("500"), "tree_commission_earned": models.MustMoney("1")}).Error; err != nil {
		t.Fatalf("tamper user failed: %v", err)
	}

	summary, err := env.reconcile.ReconcileUserEarnings(context.Background())
	if err != nil {
		t.Fatalf("reconcile users failed: %v", err)
	}
	if summary.Scanned != 5 || summary.Corrected != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	fixed := reloadUser(t, env.db, chain[2].ID)
	assertMoney(t, "wallet", fixed.Wallet, "15")
	assertMoney(t, "tree earned", fixed.TreeCommissionEarned, "15")

	logs, total, err := env.reconcile.ListLogs(repository.ReconciliationLogListFilter{Scope: constants.ReconcileScopeUser})
	if err != nil {
		t.Fatalf("list logs failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 field corrections, got %d", total)
	}
	for _, log := range logs {
		if log.Subject != chain[2].ID {
			t.Fatalf("unexpected log subject %s", log.Subject)
		}
	}

	again, err := env.reconcile.ReconcileUserEarnings(context.Background())
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if again.Corrected != 0 {
		t.Fatalf("second run should not correct, got %d", again.Corrected)
	}
}

func TestReconcileRunsFundsAndUsers(t *testing.T) {
	env := setupServiceTest(t, "reconcile_all")
	root := insertUser(t, env.db, "root", nil, nil)
	buyer := insertUser(t, env.db, "buyer", root, nil)
	if _, err := env.commissions.Distribute(context.Background(), DistributeInput{
		OrderID:     "order-all",
		PurchaserID: buyer.ID,
		OrderAmount: models.MustMoney("10"),
	}); err != nil {
		t.Fatalf("distribute failed: %v", err)
	}
	if err := env.db.Model(&models.TrustFund{}).Where("fund_type = ?", constants.FundTypeDevelopment).
		Update("balance", models.ZeroMoney()).Error; err != nil {
		t.Fatalf("tamper fund failed: %v", err)
	}

	report, err := env.reconcile.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(report.Funds) != len(constants.FundTypes) {
		t.Fatalf("expected %d fund results, got %d", len(constants.FundTypes), len(report.Funds))
	}
	for _, result := range report.Funds {
		want := constants.ReconcileStatusOK
		if result.FundType == constants.FundTypeDevelopment {
			want = constants.ReconcileStatusCorrected
		}
		if result.Status != want {
			t.Fatalf("fund %s: expected %s, got %s", result.FundType, want, result.Status)
		}
	}
	if report.Users == nil || report.Users.Scanned != 2 {
		t.Fatalf("expected user summary, got %+v", report.Users)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.reconcile.Reconcile(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent reconcile failed: %v", err)
	}
}

func TestReconcileHonoursCancelledContext(t *testing.T) {
	env := setupServiceTest(t, "reconcile_cancel")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := env.reconcile.Reconcile(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
