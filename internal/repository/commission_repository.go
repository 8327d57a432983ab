package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/models"

	"gorm.io/gorm"
)

// CommissionRepository 佣金分配记录数据访问接口
type CommissionRepository interface {
	Create(record *models.CommissionTransaction) error
	CreateTreeEntries(entries []models.CommissionTreeEntry) error
	GetByOrderID(orderID string) (*models.CommissionTransaction, error)
	GetByID(id uint) (*models.CommissionTransaction, error)
	MarkCompleted(record *models.CommissionTransaction) (bool, error)
	MarkFailed(orderID, reason string) (bool, error)
	ReclaimFailed(orderID string) (bool, error)
	List(filter CommissionListFilter) ([]models.CommissionTransaction, int64, error)
	WithTx(tx *gorm.DB) CommissionRepository
	Transaction(fn func(tx *gorm.DB) error) error
}

// GormCommissionRepository GORM 实现
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金记录仓库
func NewCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCommissionRepository) WithTx(tx *gorm.DB) CommissionRepository {
	if tx == nil {
		return r
	}
	return &GormCommissionRepository{db: tx}
}

// Transaction 执行事务
func (r *GormCommissionRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建佣金记录（order_id 唯一约束作为幂等依据）
func (r *GormCommissionRepository) Create(record *models.CommissionTransaction) error {
	return r.db.Omit("TreeCommissions").Create(record).Error
}

// CreateTreeEntries 批量写入树佣金明细
func (r *GormCommissionRepository) CreateTreeEntries(entries []models.CommissionTreeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.Create(&entries).Error
}

// GetByOrderID 按订单获取佣金记录（含树佣金明细）
func (r *GormCommissionRepository) GetByOrderID(orderID string) (*models.CommissionTransaction, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, nil
	}
	var record models.CommissionTransaction
	if err := r.db.Preload("TreeCommissions", func(db *gorm.DB) *gorm.DB {
		return db.Order("level asc")
	}).Where("order_id = ?", orderID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetByID 按ID获取佣金记录
func (r *GormCommissionRepository) GetByID(id uint) (*models.CommissionTransaction, error) {
	if id == 0 {
		return nil, nil
	}
	var record models.CommissionTransaction
	if err := r.db.Preload("TreeCommissions", func(db *gorm.DB) *gorm.DB {
		return db.Order("level asc")
	}).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// MarkCompleted 写入分配结果并由 pending 转为 completed
func (r *GormCommissionRepository) MarkCompleted(record *models.CommissionTransaction) (bool, error) {
	if record == nil || record.ID == 0 {
		return false, nil
	}
	now := time.Now()
	result := r.db.Model(&models.CommissionTransaction{}).
		Where("id = ? AND status = ?", record.ID, constants.CommissionStatusPending).
		Updates(map[string]interface{}{
			"purchaser_id":               record.PurchaserID,
			"order_amount":               record.OrderAmount,
			"total_commission":           record.TotalCommission,
			"direct_referrer_id":         record.DirectReferrerID,
			"direct_commission_amount":   record.DirectCommissionAmount,
			"direct_redirected":          record.DirectRedirected,
			"direct_redirect_reason":     record.DirectRedirectReason,
			"tree_pool_amount":           record.TreePoolAmount,
			"trust_fund_amount":          record.TrustFundAmount,
			"redirected_to_trust_amount": record.RedirectedToTrustAmount,
			"dev_trust_fund_amount":      record.DevTrustFundAmount,
			"remainder_to_dev_fund":      record.RemainderToDevFund,
			"status":                     constants.CommissionStatusCompleted,
			"failure_reason":             "",
			"completed_at":               now,
			"updated_at":                 now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	record.Status = constants.CommissionStatusCompleted
	record.FailureReason = ""
	record.CompletedAt = &now
	record.UpdatedAt = now
	return true, nil
}

// MarkFailed 将 pending 或 failed 记录标记为 failed 并更新失败原因，已完成记录不受影响
func (r *GormCommissionRepository) MarkFailed(orderID, reason string) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, nil
	}
	if len(reason) > 500 {
		reason = reason[:500]
	}
	result := r.db.Model(&models.CommissionTransaction{}).
		Where("order_id = ? AND status IN ?", orderID, []string{constants.CommissionStatusPending, constants.CommissionStatusFailed}).
		Updates(map[string]interface{}{
			"status":         constants.CommissionStatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReclaimFailed 将 failed 记录条件更新为 pending，返回是否抢占成功
func (r *GormCommissionRepository) ReclaimFailed(orderID string) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, nil
	}
	result := r.db.Model(&models.CommissionTransaction{}).
		Where("order_id = ? AND status = ?", orderID, constants.CommissionStatusFailed).
		Updates(map[string]interface{}{
			"status":     constants.CommissionStatusPending,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// List 佣金记录列表
func (r *GormCommissionRepository) List(filter CommissionListFilter) ([]models.CommissionTransaction, int64, error) {
	query := r.db.Model(&models.CommissionTransaction{})
	if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
		query = query.Where("order_id = ?", orderID)
	}
	if purchaserID := strings.TrimSpace(filter.PurchaserID); purchaserID != "" {
		query = query.Where("purchaser_id = ?", purchaserID)
	}
	if referrerID := strings.TrimSpace(filter.DirectReferrerID); referrerID != "" {
		query = query.Where("direct_referrer_id = ?", referrerID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
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

	var records []models.CommissionTransaction
	if err := query.Preload("TreeCommissions", func(db *gorm.DB) *gorm.DB {
		return db.Order("level asc")
	}).Order("id desc").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
