package service

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testReferralSeq atomic.Int64

type serviceTestEnv struct {
	db             *gorm.DB
	userRepo       *repository.GormUserRepository
	commissionRepo *repository.GormCommissionRepository
	fundRepo       *repository.GormFundRepository
	earningRepo    *repository.GormEarningRepository
	logRepo        *repository.GormReconciliationLogRepository
	placement      *TreePlacementService
	users          *UserService
	ledger         *LedgerService
	commissions    *CommissionService
	wallets        *WalletService
	reconcile      *ReconciliationService
}

func setupServiceTest(t *testing.T, name string) *serviceTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
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

	env := &serviceTestEnv{
		db:             db,
		userRepo:       repository.NewUserRepository(db),
		commissionRepo: repository.NewCommissionRepository(db),
		fundRepo:       repository.NewFundRepository(db),
		earningRepo:    repository.NewEarningRepository(db),
		logRepo:        repository.NewReconciliationLogRepository(db),
	}
	env.placement = NewTreePlacementService(env.userRepo, PlacementOptions{})
	env.users = NewUserService(env.userRepo, env.placement)
	env.ledger = NewLedgerService(env.fundRepo, env.logRepo, LedgerOptions{WithdrawInitialBackoff: time.Millisecond})
	env.commissions = NewCommissionService(env.commissionRepo, env.userRepo, env.earningRepo, env.ledger, CommissionOptions{})
	env.wallets = NewWalletService(env.userRepo, env.earningRepo)
	env.reconcile = NewReconciliationService(env.ledger, env.userRepo, env.earningRepo, env.logRepo, ReconcileOptions{IncludeUsers: true, BatchSize: 2})
	return env
}

// insertUser 直接写入树节点，绕过放置逻辑构造任意形状的树
func insertUser(t *testing.T, db *gorm.DB, id string, parent *models.User, referredBy *models.User) *models.User {
	t.Helper()
	user := &models.User{
		ID:                     id,
		ReferralCode:           fmt.Sprintf("%s%06d", constants.ReferralCodePrefix, testReferralSeq.Add(1)),
		TreeLevel:              constants.TreeRootLevel,
		Wallet:                 models.ZeroMoney(),
		DirectCommissionEarned: models.ZeroMoney(),
		TreeCommissionEarned:   models.ZeroMoney(),
		CreatedAt:              time.Now(),
	}
	if parent != nil {
		parentID := parent.ID
		user.TreeParentID = &parentID
		user.TreeLevel = parent.TreeLevel + 1
		user.TreePosition = parent.TreeChildCount
		parent.TreeChildCount++
		if err := db.Model(&models.User{}).Where("id = ?", parent.ID).
			UpdateColumn("tree_child_count", parent.TreeChildCount).Error; err != nil {
			t.Fatalf("bump child count failed: %v", err)
		}
	}
	if referredBy != nil {
		code := referredBy.ReferralCode
		user.ReferredByCode = &code
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user %s failed: %v", id, err)
	}
	return user
}

// insertChain 创建一条长度为 n 的单链，返回从根到叶的节点
func insertChain(t *testing.T, db *gorm.DB, prefix string, n int) []*models.User {
	t.Helper()
	chain := make([]*models.User, 0, n)
	var parent *models.User
	for i := 0; i < n; i++ {
		user := insertUser(t, db, fmt.Sprintf("%s-%02d", prefix, i), parent, nil)
		chain = append(chain, user)
		parent = user
	}
	return chain
}

func reloadUser(t *testing.T, db *gorm.DB, id string) *models.User {
	t.Helper()
	var user models.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		t.Fatalf("reload user %s failed: %v", id, err)
	}
	return &user
}

func fundBalance(t *testing.T, db *gorm.DB, fundType string) models.Money {
	t.Helper()
	var fund models.TrustFund
	if err := db.Where("fund_type = ?", fundType).First(&fund).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.ZeroMoney()
		}
		t.Fatalf("load fund %s failed: %v", fundType, err)
	}
	return fund.Balance
}

func assertMoney(t *testing.T, label string, got models.Money, want string) {
	t.Helper()
	if !got.Equal(models.MustMoney(want)) {
		t.Fatalf("%s mismatch: got=%s want=%s", label, got.String(), want)
	}
}
