package repository

import (
	"errors"
	"strings"

	"github.com/dujiao-next/referral-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 用户与推荐树节点数据访问接口
type UserRepository interface {
	GetByID(id string) (*models.User, error)
	GetByIDForUpdate(id string) (*models.User, error)
	GetByReferralCode(code string) (*models.User, error)
	ListByIDsForUpdate(ids []string) ([]models.User, error)
	ListTreeChildren(parentID string) ([]models.User, error)
	ListTreeChildrenOf(parentIDs []string) ([]models.User, error)
	TryReserveChildSlot(parentID string, maxChildren int) (bool, error)
	Create(user *models.User) error
	UpdateEarnings(user *models.User) error
	SetSuspended(id string, suspended bool) (bool, error)
	List(filter UserListFilter) ([]models.User, int64, error)
	FindInBatches(batchSize int, fn func(users []models.User) error) error
	WithTx(tx *gorm.DB) UserRepository
	Transaction(fn func(tx *gorm.DB) error) error
}

// GormUserRepository GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// WithTx 绑定事务
func (r *GormUserRepository) WithTx(tx *gorm.DB) UserRepository {
	if tx == nil {
		return r
	}
	return &GormUserRepository{db: tx}
}

// Transaction 执行事务
func (r *GormUserRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 根据 ID 获取用户
func (r *GormUserRepository) GetByID(id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var user models.User
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByIDForUpdate 根据 ID 加锁获取用户
func (r *GormUserRepository) GetByIDForUpdate(id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var user models.User
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByReferralCode 根据推荐码获取用户
func (r *GormUserRepository) GetByReferralCode(code string) (*models.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	var user models.User
	if err := r.db.Where("referral_code = ?", code).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// ListByIDsForUpdate 按 ID 升序加锁批量获取用户（固定加锁顺序避免死锁）
func (r *GormUserRepository) ListByIDsForUpdate(ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id asc").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// ListTreeChildren 按创建时间升序获取树子节点
func (r *GormUserRepository) ListTreeChildren(parentID string) ([]models.User, error) {
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return []models.User{}, nil
	}
	var users []models.User
	if err := r.db.Where("tree_parent_id = ?", parentID).
		Order("created_at asc").
		Order("tree_position asc").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// ListTreeChildrenOf 批量获取多个父节点的子节点（按创建时间升序）
func (r *GormUserRepository) ListTreeChildrenOf(parentIDs []string) ([]models.User, error) {
	if len(parentIDs) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	if err := r.db.Where("tree_parent_id IN ?", parentIDs).
		Order("created_at asc").
		Order("tree_position asc").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// TryReserveChildSlot 原子占用父节点的一个子槽位，容量已满时返回 false
func (r *GormUserRepository) TryReserveChildSlot(parentID string, maxChildren int) (bool, error) {
	parentID = strings.TrimSpace(parentID)
	if parentID == "" || maxChildren <= 0 {
		return false, nil
	}
	result := r.db.Model(&models.User{}).
		Where("id = ? AND tree_child_count < ?", parentID, maxChildren).
		UpdateColumn("tree_child_count", gorm.Expr("tree_child_count + ?", 1))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Create 创建用户
func (r *GormUserRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// UpdateEarnings 更新钱包与累计收益字段
func (r *GormUserRepository) UpdateEarnings(user *models.User) error {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return nil
	}
	return r.db.Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"wallet":                   user.Wallet,
			"direct_commission_earned": user.DirectCommissionEarned,
			"tree_commission_earned":   user.TreeCommissionEarned,
			"updated_at":               user.UpdatedAt,
		}).Error
}

// SetSuspended 设置停用状态，返回是否命中用户
func (r *GormUserRepository) SetSuspended(id string, suspended bool) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	result := r.db.Model(&models.User{}).
		Where("id = ?", id).
		Update("suspended", suspended)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// List 用户列表
func (r *GormUserRepository) List(filter UserListFilter) ([]models.User, int64, error) {
	query := r.db.Model(&models.User{})
	query = applyKeywordSearch(query, filter.Keyword, "id", "referral_code")
	if filter.Suspended != nil {
		query = query.Where("suspended = ?", *filter.Suspended)
	}
	if parentID := strings.TrimSpace(filter.TreeParentID); parentID != "" {
		query = query.Where("tree_parent_id = ?", parentID)
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

	var users []models.User
	if err := query.Order("created_at desc").Order("id desc").Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// FindInBatches 分批遍历全部用户
func (r *GormUserRepository) FindInBatches(batchSize int, fn func(users []models.User) error) error {
	if fn == nil {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	var batch []models.User
	result := r.db.Model(&models.User{}).Order("id asc").FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
		return fn(batch)
	})
	return result.Error
}
