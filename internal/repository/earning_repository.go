package repository

import (
	"strings"

	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/models"

	"gorm.io/gorm"
)

// EarningTotals 用户收益流水按类型汇总
type EarningTotals struct {
	Wallet                 models.Money
	DirectCommissionEarned models.Money
	TreeCommissionEarned   models.Money
}

// EarningRepository 用户收益流水数据访问接口
type EarningRepository interface {
	CreateTransaction(txn *models.EarningTransaction) error
	ListTransactions(filter EarningTransactionListFilter) ([]models.EarningTransaction, int64, error)
	SumByUserIDs(userIDs []string) (map[string]EarningTotals, error)
	WithTx(tx *gorm.DB) EarningRepository
}

// GormEarningRepository GORM 实现
type GormEarningRepository struct {
	db *gorm.DB
}

// NewEarningRepository 创建收益流水仓库
func NewEarningRepository(db *gorm.DB) *GormEarningRepository {
	return &GormEarningRepository{db: db}
}

// WithTx 绑定事务
func (r *GormEarningRepository) WithTx(tx *gorm.DB) EarningRepository {
	if tx == nil {
		return r
	}
	return &GormEarningRepository{db: tx}
}

// CreateTransaction 追加收益流水
func (r *GormEarningRepository) CreateTransaction(txn *models.EarningTransaction) error {
	return r.db.Create(txn).Error
}

// ListTransactions 分页查询收益流水
func (r *GormEarningRepository) ListTransactions(filter EarningTransactionListFilter) ([]models.EarningTransaction, int64, error) {
	query := r.db.Model(&models.EarningTransaction{})
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
		query = query.Where("order_id = ?", orderID)
	}
	if txnType := strings.TrimSpace(filter.Type); txnType != "" {
		query = query.Where("type = ?", txnType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var txns []models.EarningTransaction
	if err := query.Order("id desc").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

type earningSumRow struct {
	UserID string
	Type   string
	Total  models.Money
}

// SumByUserIDs 按用户汇总收益流水，未出现的用户返回零值
func (r *GormEarningRepository) SumByUserIDs(userIDs []string) (map[string]EarningTotals, error) {
	result := make(map[string]EarningTotals, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	var rows []earningSumRow
	if err := r.db.Model(&models.EarningTransaction{}).
		Select("user_id, type, COALESCE(SUM(amount), 0) AS total").
		Where("user_id IN ?", userIDs).
		Group("user_id, type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, id := range userIDs {
		result[id] = EarningTotals{
			Wallet:                 models.ZeroMoney(),
			DirectCommissionEarned: models.ZeroMoney(),
			TreeCommissionEarned:   models.ZeroMoney(),
		}
	}
	for _, row := range rows {
		totals := result[row.UserID]
		totals.Wallet = totals.Wallet.Add(row.Total)
		switch row.Type {
		case constants.EarningTxnTypeDirectCommission:
			totals.DirectCommissionEarned = totals.DirectCommissionEarned.Add(row.Total)
		case constants.EarningTxnTypeTreeCommission:
			totals.TreeCommissionEarned = totals.TreeCommissionEarned.Add(row.Total)
		}
		result[row.UserID] = totals
	}
	return result, nil
}
