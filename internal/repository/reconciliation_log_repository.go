package repository

import (
	"strings"

	"github.com/dujiao-next/referral-ledger/internal/models"

	"gorm.io/gorm"
)

// ReconciliationLogRepository 对账修正记录数据访问接口
type ReconciliationLogRepository interface {
	Create(log *models.ReconciliationLog) error
	List(filter ReconciliationLogListFilter) ([]models.ReconciliationLog, int64, error)
	WithTx(tx *gorm.DB) ReconciliationLogRepository
}

// GormReconciliationLogRepository GORM 实现
type GormReconciliationLogRepository struct {
	db *gorm.DB
}

// NewReconciliationLogRepository 创建对账记录仓库
func NewReconciliationLogRepository(db *gorm.DB) *GormReconciliationLogRepository {
	return &GormReconciliationLogRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReconciliationLogRepository) WithTx(tx *gorm.DB) ReconciliationLogRepository {
	if tx == nil {
		return r
	}
	return &GormReconciliationLogRepository{db: tx}
}

// Create 写入对账修正记录
func (r *GormReconciliationLogRepository) Create(log *models.ReconciliationLog) error {
	return r.db.Create(log).Error
}

// List 分页查询对账修正记录
func (r *GormReconciliationLogRepository) List(filter ReconciliationLogListFilter) ([]models.ReconciliationLog, int64, error) {
	query := r.db.Model(&models.ReconciliationLog{})
	if scope := strings.TrimSpace(filter.Scope); scope != "" {
		query = query.Where("scope = ?", scope)
	}
	if subject := strings.TrimSpace(filter.Subject); subject != "" {
		query = query.Where("subject = ?", subject)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var logs []models.ReconciliationLog
	if err := query.Order("id desc").Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
