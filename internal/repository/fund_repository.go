package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FundRepository 资金池数据访问接口
type FundRepository interface {
	GetByType(fundType string) (*models.TrustFund, error)
	GetByTypeForUpdate(fundType string) (*models.TrustFund, error)
	Create(fund *models.TrustFund) error
	CreateIfAbsent(fund *models.TrustFund) error
	UpdateBalance(fundID uint, balance models.Money) error
	ListFunds() ([]models.TrustFund, error)
	CreateTransaction(txn *models.TrustFundTransaction) error
	ListTransactions(filter FundTransactionListFilter) ([]models.TrustFundTransaction, int64, error)
	SumTransactions(fundID uint) (models.Money, error)
	WithTx(tx *gorm.DB) FundRepository
	Transaction(fn func(tx *gorm.DB) error) error
}

// GormFundRepository GORM 实现
type GormFundRepository struct {
	db *gorm.DB
}

// NewFundRepository 创建资金池仓库
func NewFundRepository(db *gorm.DB) *GormFundRepository {
	return &GormFundRepository{db: db}
}

// WithTx 绑定事务
func (r *GormFundRepository) WithTx(tx *gorm.DB) FundRepository {
	if tx == nil {
		return r
	}
	return &GormFundRepository{db: tx}
}

// Transaction 执行事务
func (r *GormFundRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByType 按类型获取资金池
func (r *GormFundRepository) GetByType(fundType string) (*models.TrustFund, error) {
	fundType = strings.TrimSpace(fundType)
	if fundType == "" {
		return nil, nil
	}
	var fund models.TrustFund
	if err := r.db.Where("fund_type = ?", fundType).First(&fund).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fund, nil
}

// GetByTypeForUpdate 按类型加锁获取资金池
func (r *GormFundRepository) GetByTypeForUpdate(fundType string) (*models.TrustFund, error) {
	fundType = strings.TrimSpace(fundType)
	if fundType == "" {
		return nil, nil
	}
	var fund models.TrustFund
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("fund_type = ?", fundType).
		First(&fund).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fund, nil
}

// Create 创建资金池
func (r *GormFundRepository) Create(fund *models.TrustFund) error {
	return r.db.Create(fund).Error
}

// CreateIfAbsent 创建资金池，类型已存在时忽略
func (r *GormFundRepository) CreateIfAbsent(fund *models.TrustFund) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fund_type"}},
		DoNothing: true,
	}).Create(fund).Error
}

// UpdateBalance 更新资金池余额（仅账本服务调用）
func (r *GormFundRepository) UpdateBalance(fundID uint, balance models.Money) error {
	if fundID == 0 {
		return nil
	}
	return r.db.Model(&models.TrustFund{}).
		Where("id = ?", fundID).
		Updates(map[string]interface{}{
			"balance":    balance,
			"updated_at": time.Now(),
		}).Error
}

// ListFunds 获取全部资金池
func (r *GormFundRepository) ListFunds() ([]models.TrustFund, error) {
	var funds []models.TrustFund
	if err := r.db.Order("id asc").Find(&funds).Error; err != nil {
		return nil, err
	}
	return funds, nil
}

// CreateTransaction 追加资金池流水
func (r *GormFundRepository) CreateTransaction(txn *models.TrustFundTransaction) error {
	return r.db.Create(txn).Error
}

// ListTransactions 分页查询资金池流水（按时间倒序）
func (r *GormFundRepository) ListTransactions(filter FundTransactionListFilter) ([]models.TrustFundTransaction, int64, error) {
	query := r.db.Model(&models.TrustFundTransaction{})
	if fundType := strings.TrimSpace(filter.FundType); fundType != "" {
		query = query.Where("fund_type = ?", fundType)
	}
	if txnType := strings.TrimSpace(filter.Type); txnType != "" {
		query = query.Where("type = ?", txnType)
	}
	if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
		query = query.Where("order_id = ?", orderID)
	}
	query = applyKeywordSearch(query, filter.Keyword, "description", "transaction_no")
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var txns []models.TrustFundTransaction
	if err := query.Order("id desc").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// SumTransactions 汇总资金池全部流水金额
func (r *GormFundRepository) SumTransactions(fundID uint) (models.Money, error) {
	sum := models.ZeroMoney()
	if fundID == 0 {
		return sum, nil
	}
	row := r.db.Model(&models.TrustFundTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("fund_id = ?", fundID).
		Row()
	if err := row.Scan(&sum); err != nil {
		return models.ZeroMoney(), err
	}
	return sum, nil
}
