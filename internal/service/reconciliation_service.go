package service

import (
	"context"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/metrics"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/repository"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	reconcileFlightAll   = "reconcile:all"
	reconcileFlightFunds = "reconcile:funds"
	reconcileFlightUsers = "reconcile:users"
)

// ReconcileOptions 对账配置
type ReconcileOptions struct {
	IncludeUsers bool
	BatchSize    int
	Tolerance    decimal.Decimal
}

// ReconciliationService 账本对账服务
type ReconciliationService struct {
	ledger      *LedgerService
	userRepo    repository.UserRepository
	earningRepo repository.EarningRepository
	logRepo     repository.ReconciliationLogRepository
	options     ReconcileOptions
	group       singleflight.Group
}

// UserReconcileSummary 用户收益对账汇总
type UserReconcileSummary struct {
	Scanned   int `json:"scanned"`
	Corrected int `json:"corrected"`
}

// ReconcileReport 一次对账运行的结果
type ReconcileReport struct {
	Funds      []FundReconciliationResult `json:"funds"`
	Users      *UserReconcileSummary      `json:"users,omitempty"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
}

// NewReconciliationService 创建对账服务
func NewReconciliationService(
	ledger *LedgerService,
	userRepo repository.UserRepository,
	earningRepo repository.EarningRepository,
	logRepo repository.ReconciliationLogRepository,
	options ReconcileOptions,
) *ReconciliationService {
	if options.BatchSize <= 0 {
		options.BatchSize = 200
	}
	if options.Tolerance.Sign() <= 0 {
		options.Tolerance = models.MoneyTolerance
	}
	return &ReconciliationService{
		ledger:      ledger,
		userRepo:    userRepo,
		earningRepo: earningRepo,
		logRepo:     logRepo,
		options:     options,
	}
}

// Reconcile 先对账资金池，再按配置对账用户收益；并发调用共享同一次运行
func (s *ReconciliationService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	return s.ReconcileScoped(ctx, s.options.IncludeUsers)
}

// ReconcileFunds 仅对账资金池
func (s *ReconciliationService) ReconcileFunds(ctx context.Context) (*ReconcileReport, error) {
	return s.ReconcileScoped(ctx, false)
}

// ReconcileScoped 对账资金池，includeUsers 为 true 时继续对账用户收益
func (s *ReconciliationService) ReconcileScoped(ctx context.Context, includeUsers bool) (*ReconcileReport, error) {
	key := reconcileFlightFunds
	if includeUsers {
		key = reconcileFlightAll
	}
	return s.do(key, func() (*ReconcileReport, error) {
		return s.run(ctx, includeUsers)
	})
}

// ReconcileUsers 仅对账用户收益
func (s *ReconciliationService) ReconcileUsers(ctx context.Context) (*ReconcileReport, error) {
	return s.do(reconcileFlightUsers, func() (*ReconcileReport, error) {
		report := &ReconcileReport{StartedAt: time.Now()}
		summary, err := s.ReconcileUserEarnings(ctx)
		if err != nil {
			return nil, err
		}
		report.Users = summary
		report.FinishedAt = time.Now()
		return report, nil
	})
}

func (s *ReconciliationService) do(key string, fn func() (*ReconcileReport, error)) (*ReconcileReport, error) {
	value, err, shared := s.group.Do(key, func() (interface{}, error) {
		return fn()
	})
	if shared {
		logger.Debugw("ledger_reconcile_shared", "key", key)
	}
	if err != nil {
		return nil, err
	}
	return value.(*ReconcileReport), nil
}

func (s *ReconciliationService) run(ctx context.Context, includeUsers bool) (*ReconcileReport, error) {
	report := &ReconcileReport{StartedAt: time.Now()}
	metrics.IncReconcileRun(constants.ReconcileScopeFund)
	for _, fundType := range constants.FundTypes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.ledger.ReconcileFund(fundType)
		if err != nil {
			logger.Errorw("ledger_reconcile_fund_failed", "fund_type", fundType, "error", err)
			return nil, err
		}
		report.Funds = append(report.Funds, *result)
	}
	if includeUsers {
		summary, err := s.ReconcileUserEarnings(ctx)
		if err != nil {
			return nil, err
		}
		report.Users = summary
	}
	report.FinishedAt = time.Now()
	logger.Infow("ledger_reconcile_completed",
		"funds", len(report.Funds),
		"include_users", includeUsers,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report, nil
}

// ReconcileUserEarnings 按收益流水重算用户钱包与累计收益，偏差超过容差时修正
func (s *ReconciliationService) ReconcileUserEarnings(ctx context.Context) (*UserReconcileSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	metrics.IncReconcileRun(constants.ReconcileScopeUser)
	summary := &UserReconcileSummary{}
	err := s.userRepo.FindInBatches(s.options.BatchSize, func(users []models.User) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids := make([]string, 0, len(users))
		for _, user := range users {
			ids = append(ids, user.ID)
		}
		totals, err := s.earningRepo.SumByUserIDs(ids)
		if err != nil {
			return wrapStorage("sum earnings", err)
		}
		summary.Scanned += len(users)
		for i := range users {
			if !s.drifted(&users[i], totals[users[i].ID]) {
				continue
			}
			corrected, err := s.correctUser(users[i].ID)
			if err != nil {
				return err
			}
			if corrected {
				summary.Corrected++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("ledger_reconcile_users_completed",
		"scanned", summary.Scanned,
		"corrected", summary.Corrected,
	)
	return summary, nil
}

func (s *ReconciliationService) drifted(user *models.User, totals repository.EarningTotals) bool {
	tolerance := s.options.Tolerance
	return !user.Wallet.WithinTolerance(totals.Wallet, tolerance) ||
		!user.DirectCommissionEarned.WithinTolerance(totals.DirectCommissionEarned, tolerance) ||
		!user.TreeCommissionEarned.WithinTolerance(totals.TreeCommissionEarned, tolerance)
}

// correctUser 加锁后重新汇总，避免与并发分配竞争
func (s *ReconciliationService) correctUser(userID string) (bool, error) {
	type fieldChange struct {
		field string
		old, new models.Money
	}
	var changes []fieldChange
	err := s.userRepo.Transaction(func(tx *gorm.DB) error {
		userRepo := s.userRepo.WithTx(tx)
		user, err := userRepo.GetByIDForUpdate(userID)
		if err != nil {
			return wrapStorage("lock user", err)
		}
		if user == nil {
			return nil
		}
		totalsByUser, err := s.earningRepo.WithTx(tx).SumByUserIDs([]string{userID})
		if err != nil {
			return wrapStorage("sum earnings", err)
		}
		totals := totalsByUser[userID]
		tolerance := s.options.Tolerance
		if !user.Wallet.WithinTolerance(totals.Wallet, tolerance) {
			changes = append(changes, fieldChange{"wallet", user.Wallet, totals.Wallet})
			user.Wallet = totals.Wallet
		}
		if !user.DirectCommissionEarned.WithinTolerance(totals.DirectCommissionEarned, tolerance) {
			changes = append(changes, fieldChange{"direct_commission_earned", user.DirectCommissionEarned, totals.DirectCommissionEarned})
			user.DirectCommissionEarned = totals.DirectCommissionEarned
		}
		if !user.TreeCommissionEarned.WithinTolerance(totals.TreeCommissionEarned, tolerance) {
			changes = append(changes, fieldChange{"tree_commission_earned", user.TreeCommissionEarned, totals.TreeCommissionEarned})
			user.TreeCommissionEarned = totals.TreeCommissionEarned
		}
		if len(changes) == 0 {
			return nil
		}
		user.UpdatedAt = time.Now()
		if err := userRepo.UpdateEarnings(user); err != nil {
			return wrapStorage("correct user earnings", err)
		}
		logRepo := s.logRepo.WithTx(tx)
		for _, change := range changes {
			if err := logRepo.Create(&models.ReconciliationLog{
				Scope:    constants.ReconcileScopeUser,
				Subject:  userID,
				Field:    change.field,
				OldValue: change.old,
				NewValue: change.new,
			}); err != nil {
				return wrapStorage("write reconciliation log", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	for _, change := range changes {
		metrics.IncReconcileCorrection(constants.ReconcileScopeUser, change.field)
		logger.Warnw("ledger_reconcile_user_corrected",
			"user_id", userID,
			"field", change.field,
			"old_value", change.old.String(),
			"new_value", change.new.String(),
		)
	}
	return len(changes) > 0, nil
}

// ListLogs 分页查询对账修正记录
func (s *ReconciliationService) ListLogs(filter repository.ReconciliationLogListFilter) ([]models.ReconciliationLog, int64, error) {
	return s.logRepo.List(filter)
}
