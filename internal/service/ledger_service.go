package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/metrics"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerOptions 资金池账本配置
type LedgerOptions struct {
	WithdrawMaxAttempts    int
	WithdrawInitialBackoff time.Duration
	ReconcileTolerance     decimal.Decimal
}

// LedgerService 信托基金/发展基金账本服务，余额的唯一写入路径
type LedgerService struct {
	fundRepo repository.FundRepository
	logRepo  repository.ReconciliationLogRepository
	options  LedgerOptions
}

// FundCreditInput 资金池入账输入
type FundCreditInput struct {
	FundType    string
	Amount      models.Money
	OrderID     string
	TxnType     string
	Description string
}

// WithdrawResult 资金池提现结果
type WithdrawResult struct {
	FundType      string       `json:"fund_type"`
	Amount        models.Money `json:"amount"`
	NewBalance    models.Money `json:"new_balance"`
	TransactionID string       `json:"transaction_id"`
	Attempts      int          `json:"attempts"`
}

// FundReconciliationResult 资金池对账结果
type FundReconciliationResult struct {
	FundType   string       `json:"fund_type"`
	Status     string       `json:"status"`
	Corrected  bool         `json:"corrected"`
	OldBalance models.Money `json:"old_balance"`
	NewBalance models.Money `json:"new_balance"`
	Drift      models.Money `json:"drift"`
}

// NewLedgerService 创建账本服务
func NewLedgerService(fundRepo repository.FundRepository, logRepo repository.ReconciliationLogRepository, options LedgerOptions) *LedgerService {
	if options.WithdrawMaxAttempts <= 0 {
		options.WithdrawMaxAttempts = 3
	}
	if options.WithdrawInitialBackoff <= 0 {
		options.WithdrawInitialBackoff = 100 * time.Millisecond
	}
	if options.ReconcileTolerance.Sign() <= 0 {
		options.ReconcileTolerance = models.MoneyTolerance
	}
	return &LedgerService{fundRepo: fundRepo, logRepo: logRepo, options: options}
}

// IsValidFundType 是否为合法基金类型
func IsValidFundType(fundType string) bool {
	for _, item := range constants.FundTypes {
		if item == fundType {
			return true
		}
	}
	return false
}

func normalizeFundType(fundType string) (string, error) {
	fundType = strings.ToLower(strings.TrimSpace(fundType))
	if !IsValidFundType(fundType) {
		return "", ErrInvalidFundType
	}
	return fundType, nil
}

// Credit 资金池入账（独立事务）
func (s *LedgerService) Credit(input FundCreditInput) (*models.TrustFundTransaction, error) {
	var txn *models.TrustFundTransaction
	err := s.fundRepo.Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.CreditInTx(tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	if txn != nil {
		metrics.SetFundBalance(txn.FundType, txn.BalanceAfter.Decimal)
	}
	return txn, nil
}

// CreditInTx 在调用方事务内入账，金额为零时不写流水
func (s *LedgerService) CreditInTx(tx *gorm.DB, input FundCreditInput) (*models.TrustFundTransaction, error) {
	fundType, err := normalizeFundType(input.FundType)
	if err != nil {
		return nil, err
	}
	if input.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if input.Amount.IsZero() {
		return nil, nil
	}
	txnType := strings.TrimSpace(input.TxnType)
	if txnType == "" {
		txnType = constants.FundTxnTypeOrderAllocation
	}
	if txnType != constants.FundTxnTypeOrderAllocation && txnType != constants.FundTxnTypeRemainder {
		return nil, fmt.Errorf("%w: credit type %s", ErrInvalidPayload, txnType)
	}

	repo := s.fundRepo.WithTx(tx)
	fund, err := ensureFundForUpdate(repo, fundType)
	if err != nil {
		return nil, err
	}
	var orderID *string
	if trimmed := strings.TrimSpace(input.OrderID); trimmed != "" {
		orderID = &trimmed
	}
	return appendFundTransaction(repo, fund, input.Amount, txnType, orderID, input.Description)
}

// Debit 资金池出账（单次尝试，独立事务）
func (s *LedgerService) Debit(fundType string, amount models.Money, description string) (*WithdrawResult, error) {
	var result *WithdrawResult
	err := s.fundRepo.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.DebitInTx(tx, fundType, amount, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.SetFundBalance(result.FundType, result.NewBalance.Decimal)
	return result, nil
}

// DebitInTx 在调用方事务内出账，余额不足时拒绝且不写流水
func (s *LedgerService) DebitInTx(tx *gorm.DB, fundType string, amount models.Money, description string) (*WithdrawResult, error) {
	fundType, err := normalizeFundType(fundType)
	if err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	repo := s.fundRepo.WithTx(tx)
	fund, err := repo.GetByTypeForUpdate(fundType)
	if err != nil {
		return nil, wrapStorage("lock fund", err)
	}
	balance := models.ZeroMoney()
	if fund != nil {
		balance = fund.Balance
	}
	if amount.IsZero() {
		return &WithdrawResult{FundType: fundType, Amount: amount, NewBalance: balance}, nil
	}
	if fund == nil || amount.GreaterThan(balance) {
		logger.Warnw("fund_debit_insufficient_balance",
			"fund_type", fundType,
			"amount", amount.String(),
			"balance", balance.String(),
		)
		return nil, ErrInsufficientBalance
	}
	if strings.TrimSpace(description) == "" {
		description = "admin withdrawal"
	}
	txn, err := appendFundTransaction(repo, fund, amount.Neg(), constants.FundTxnTypeWithdrawal, nil, description)
	if err != nil {
		return nil, err
	}
	return &WithdrawResult{
		FundType:      fundType,
		Amount:        amount,
		NewBalance:    txn.BalanceAfter,
		TransactionID: txn.TransactionNo,
	}, nil
}

// Withdraw 管理端资金池提现，暂时性存储错误按指数退避重试，每次重试都会重新校验余额
func (s *LedgerService) Withdraw(ctx context.Context, fundType string, amount models.Money, description string) (*WithdrawResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	normalized, err := normalizeFundType(fundType)
	if err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.options.WithdrawInitialBackoff
	policy.MaxElapsedTime = 0
	retryPolicy := backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(s.options.WithdrawMaxAttempts-1)),
		ctx,
	)

	attempts := 0
	var result *WithdrawResult
	operation := func() error {
		attempts++
		res, err := s.Debit(normalized, amount, description)
		if err != nil {
			if ClassifyError(err) != ErrorCategoryTransient {
				metrics.IncWithdrawAttempt(normalized, "rejected")
				return backoff.Permanent(err)
			}
			metrics.IncWithdrawAttempt(normalized, "transient")
			return err
		}
		metrics.IncWithdrawAttempt(normalized, "ok")
		result = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warnw("fund_withdraw_retry",
			"fund_type", normalized,
			"attempt", attempts,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
	}
	if err := backoff.RetryNotify(operation, retryPolicy, notify); err != nil {
		if ClassifyError(err) == ErrorCategoryTransient {
			logger.Errorw("fund_withdraw_retry_exhausted",
				"fund_type", normalized,
				"amount", amount.String(),
				"attempts", attempts,
				"error", err,
			)
		}
		return nil, err
	}
	result.Attempts = attempts
	logger.Infow("fund_withdraw_completed",
		"fund_type", normalized,
		"amount", amount.String(),
		"new_balance", result.NewBalance.String(),
		"transaction_id", result.TransactionID,
	)
	return result, nil
}

// ReconcileFund 按流水重算资金池余额，偏差超过容差时修正并记录
func (s *LedgerService) ReconcileFund(fundType string) (*FundReconciliationResult, error) {
	fundType, err := normalizeFundType(fundType)
	if err != nil {
		return nil, err
	}
	result := &FundReconciliationResult{FundType: fundType, Status: constants.ReconcileStatusOK}
	err = s.fundRepo.Transaction(func(tx *gorm.DB) error {
		repo := s.fundRepo.WithTx(tx)
		fund, err := repo.GetByTypeForUpdate(fundType)
		if err != nil {
			return wrapStorage("lock fund", err)
		}
		if fund == nil {
			result.Status = constants.ReconcileStatusNotFound
			return nil
		}
		sum, err := repo.SumTransactions(fund.ID)
		if err != nil {
			return wrapStorage("sum fund transactions", err)
		}
		result.OldBalance = fund.Balance
		result.NewBalance = fund.Balance
		result.Drift = sum.Sub(fund.Balance)
		if fund.Balance.WithinTolerance(sum, s.options.ReconcileTolerance) {
			return nil
		}
		if err := repo.UpdateBalance(fund.ID, sum); err != nil {
			return wrapStorage("correct fund balance", err)
		}
		if s.logRepo != nil {
			if err := s.logRepo.WithTx(tx).Create(&models.ReconciliationLog{
				Scope:    constants.ReconcileScopeFund,
				Subject:  fundType,
				Field:    "balance",
				OldValue: fund.Balance,
				NewValue: sum,
			}); err != nil {
				return wrapStorage("write reconciliation log", err)
			}
		}
		result.Status = constants.ReconcileStatusCorrected
		result.Corrected = true
		result.NewBalance = sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Corrected {
		metrics.IncReconcileCorrection(constants.ReconcileScopeFund, "balance")
		logger.Warnw("ledger_reconcile_corrected",
			"fund_type", fundType,
			"old_balance", result.OldBalance.String(),
			"new_balance", result.NewBalance.String(),
			"drift", result.Drift.String(),
		)
	}
	if result.Status != constants.ReconcileStatusNotFound {
		metrics.SetFundBalance(fundType, result.NewBalance.Decimal)
	}
	return result, nil
}

// GetFund 获取资金池
func (s *LedgerService) GetFund(fundType string) (*models.TrustFund, error) {
	fundType, err := normalizeFundType(fundType)
	if err != nil {
		return nil, err
	}
	fund, err := s.fundRepo.GetByType(fundType)
	if err != nil {
		return nil, wrapStorage("load fund", err)
	}
	if fund == nil {
		return nil, ErrFundNotFound
	}
	return fund, nil
}

// ListFunds 获取全部基金类型的当前余额，尚未创建的资金池返回零余额
func (s *LedgerService) ListFunds() ([]models.TrustFund, error) {
	funds, err := s.fundRepo.ListFunds()
	if err != nil {
		return nil, wrapStorage("list funds", err)
	}
	byType := make(map[string]models.TrustFund, len(funds))
	for _, fund := range funds {
		byType[fund.FundType] = fund
	}
	result := make([]models.TrustFund, 0, len(constants.FundTypes))
	for _, fundType := range constants.FundTypes {
		if fund, ok := byType[fundType]; ok {
			result = append(result, fund)
			continue
		}
		result = append(result, models.TrustFund{FundType: fundType, Balance: models.ZeroMoney()})
	}
	return result, nil
}

// ListTransactions 分页查询资金池流水
func (s *LedgerService) ListTransactions(filter repository.FundTransactionListFilter) ([]models.TrustFundTransaction, int64, error) {
	if strings.TrimSpace(filter.FundType) != "" {
		fundType, err := normalizeFundType(filter.FundType)
		if err != nil {
			return nil, 0, err
		}
		filter.FundType = fundType
	}
	return s.fundRepo.ListTransactions(filter)
}

// ensureFundForUpdate 加锁获取资金池，不存在时惰性创建
func ensureFundForUpdate(repo repository.FundRepository, fundType string) (*models.TrustFund, error) {
	fund, err := repo.GetByTypeForUpdate(fundType)
	if err != nil {
		return nil, wrapStorage("lock fund", err)
	}
	if fund != nil {
		return fund, nil
	}
	if err := repo.CreateIfAbsent(&models.TrustFund{FundType: fundType, Balance: models.ZeroMoney()}); err != nil {
		return nil, wrapStorage("create fund", err)
	}
	fund, err = repo.GetByTypeForUpdate(fundType)
	if err != nil {
		return nil, wrapStorage("lock fund", err)
	}
	if fund == nil {
		return nil, ErrFundNotFound
	}
	return fund, nil
}

// appendFundTransaction 追加流水并同步余额，余额不得为负
func appendFundTransaction(repo repository.FundRepository, fund *models.TrustFund, amount models.Money, txnType string, orderID *string, description string) (*models.TrustFundTransaction, error) {
	before := fund.Balance
	after := before.Add(amount)
	if after.IsNegative() {
		return nil, ErrInsufficientBalance
	}
	txn := &models.TrustFundTransaction{
		TransactionNo: uuid.NewString(),
		FundID:        fund.ID,
		FundType:      fund.FundType,
		OrderID:       orderID,
		Type:          txnType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   truncateDescription(description),
		CreatedAt:     time.Now(),
	}
	if err := repo.CreateTransaction(txn); err != nil {
		return nil, wrapStorage("append fund transaction", err)
	}
	if err := repo.UpdateBalance(fund.ID, after); err != nil {
		return nil, wrapStorage("update fund balance", err)
	}
	fund.Balance = after
	return txn, nil
}

func truncateDescription(description string) string {
	description = strings.TrimSpace(description)
	runes := []rune(description)
	if len(runes) > 500 {
		return string(runes[:500])
	}
	return description
}

