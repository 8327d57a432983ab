package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/repository"

	"gorm.io/gorm"
)

// WalletService 用户佣金钱包服务
type WalletService struct {
	userRepo    repository.UserRepository
	earningRepo repository.EarningRepository
}

// WalletWithdrawInput 管理员钱包出款输入
type WalletWithdrawInput struct {
	UserID string       `json:"user_id" validate:"required,max=64"`
	Amount models.Money `json:"amount"`
	Remark string       `json:"remark" validate:"max=255"`
}

// NewWalletService 创建钱包服务
func NewWalletService(userRepo repository.UserRepository, earningRepo repository.EarningRepository) *WalletService {
	return &WalletService{userRepo: userRepo, earningRepo: earningRepo}
}

// Withdraw 从用户钱包出款（仅记账，不涉及外部转账）
func (s *WalletService) Withdraw(input WalletWithdrawInput) (*models.User, *models.EarningTransaction, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	if input.UserID == "" {
		return nil, nil, ErrInvalidUserID
	}
	if err := ValidateStruct(input); err != nil {
		return nil, nil, err
	}
	amount := models.NewMoneyFromDecimal(input.Amount.Decimal)
	if amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	var userResult *models.User
	var txnResult *models.EarningTransaction
	err := s.userRepo.Transaction(func(tx *gorm.DB) error {
		userRepo := s.userRepo.WithTx(tx)
		user, err := userRepo.GetByIDForUpdate(input.UserID)
		if err != nil {
			return wrapStorage("lock user", err)
		}
		if user == nil {
			return ErrUserNotFound
		}
		if amount.GreaterThan(user.Wallet) {
			return ErrInsufficientBalance
		}

		now := time.Now()
		before := user.Wallet
		user.Wallet = before.Sub(amount)
		user.UpdatedAt = now
		if err := userRepo.UpdateEarnings(user); err != nil {
			return wrapStorage("update wallet", err)
		}
		txn := &models.EarningTransaction{
			UserID:       user.ID,
			Type:         constants.EarningTxnTypeWalletWithdrawal,
			Amount:       amount.Neg(),
			WalletBefore: before,
			WalletAfter:  user.Wallet,
			Reference:    buildWalletReference(user.ID, now),
			Remark:       cleanWalletRemark(input.Remark, "admin wallet withdrawal"),
			CreatedAt:    now,
		}
		if err := s.earningRepo.WithTx(tx).CreateTransaction(txn); err != nil {
			return wrapStorage("create earning transaction", err)
		}
		userResult = user
		txnResult = txn
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Infow("wallet_withdraw_completed",
		"user_id", userResult.ID,
		"amount", amount.String(),
		"wallet_after", userResult.Wallet.String(),
		"reference", txnResult.Reference,
	)
	return userResult, txnResult, nil
}

// ListEarnings 查询用户收益流水
func (s *WalletService) ListEarnings(filter repository.EarningTransactionListFilter) ([]models.EarningTransaction, int64, error) {
	filter.UserID = strings.TrimSpace(filter.UserID)
	if filter.UserID != "" {
		user, err := s.userRepo.GetByID(filter.UserID)
		if err != nil {
			return nil, 0, wrapStorage("load user", err)
		}
		if user == nil {
			return nil, 0, ErrUserNotFound
		}
	}
	return s.earningRepo.ListTransactions(filter)
}

func cleanWalletRemark(raw string, fallback string) string {
	remark := strings.TrimSpace(raw)
	if remark == "" {
		return fallback
	}
	return remark
}

func buildWalletReference(userID string, now time.Time) string {
	return fmt.Sprintf("wallet:%s:withdraw:%d", userID, now.UnixNano())
}
