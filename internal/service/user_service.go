package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/metrics"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	referralCodeDigits   = 6
	referralCodeMaxRetry = 8
)

// UserService 用户目录服务（注册、树放置、停用）
type UserService struct {
	userRepo  repository.UserRepository
	placement *TreePlacementService
	options   PlacementOptions
}

// RegisterInput 注册事件输入
type RegisterInput struct {
	UserID       string `json:"user_id" validate:"omitempty,max=64"`
	ReferrerID   string `json:"referrer_id" validate:"omitempty,max=64"`
	ReferralCode string `json:"referral_code" validate:"omitempty,len=9,startswith=REF"`
}

// TreeView 树节点及其直接子节点
type TreeView struct {
	User     *models.User  `json:"user"`
	Parent   *models.User  `json:"parent,omitempty"`
	Children []models.User `json:"children"`
}

// NewUserService 创建用户服务
func NewUserService(userRepo repository.UserRepository, placement *TreePlacementService) *UserService {
	options := PlacementOptions{}
	if placement != nil {
		options = placement.options
	}
	return &UserService{userRepo: userRepo, placement: placement, options: options}
}

// Register 创建用户；存在推荐人时在同一事务内完成树放置与槽位占用
func (s *UserService) Register(input RegisterInput) (*models.User, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.ReferrerID = strings.TrimSpace(input.ReferrerID)
	input.ReferralCode = strings.ToUpper(strings.TrimSpace(input.ReferralCode))
	if err := ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.UserID == "" {
		input.UserID = uuid.NewString()
	}

	existing, err := s.userRepo.GetByID(input.UserID)
	if err != nil {
		return nil, wrapStorage("load user", err)
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	referrer, err := s.resolveReferrer(input)
	if err != nil {
		return nil, err
	}

	attempts := s.options.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		user, err := s.registerOnce(input.UserID, referrer)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrPlacementConflict) {
			return nil, err
		}
		logger.Warnw("user_register_placement_retry",
			"user_id", input.UserID,
			"attempt", attempt,
		)
	}
	return nil, ErrPlacementConflict
}

func (s *UserService) resolveReferrer(input RegisterInput) (*models.User, error) {
	var (
		referrer *models.User
		err      error
	)
	switch {
	case input.ReferrerID != "":
		referrer, err = s.userRepo.GetByID(input.ReferrerID)
	case input.ReferralCode != "":
		referrer, err = s.userRepo.GetByReferralCode(input.ReferralCode)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage("load referrer", err)
	}
	if referrer == nil {
		return nil, ErrReferrerNotFound
	}
	if input.ReferralCode != "" && input.ReferrerID != "" && referrer.ReferralCode != input.ReferralCode {
		return nil, fmt.Errorf("%w: referrer id and referral code disagree", ErrInvalidPayload)
	}
	return referrer, nil
}

func (s *UserService) registerOnce(userID string, referrer *models.User) (*models.User, error) {
	var created *models.User
	err := s.userRepo.Transaction(func(tx *gorm.DB) error {
		repo := s.userRepo.WithTx(tx)
		user := &models.User{
			ID:                     userID,
			TreeLevel:              constants.TreeRootLevel,
			TreePosition:           0,
			Wallet:                 models.ZeroMoney(),
			DirectCommissionEarned: models.ZeroMoney(),
			TreeCommissionEarned:   models.ZeroMoney(),
			CreatedAt:              time.Now(),
		}
		if referrer != nil {
			code := referrer.ReferralCode
			user.ReferredByCode = &code
			placement, err := s.placement.PlaceAndReserveTx(tx, referrer.ID)
			if err != nil {
				return err
			}
			parentID := placement.ParentID
			user.TreeParentID = &parentID
			user.TreeLevel = placement.Level
			user.TreePosition = placement.Position
		}
		if err := createWithReferralCode(tx, repo, user); err != nil {
			return err
		}
		created = user
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPlacementConflict) || isTreeSlotViolation(err) {
			return nil, ErrPlacementConflict
		}
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	if created.TreeParentID != nil {
		metrics.IncPlacement("placed")
		logger.Infow("tree_placement_completed",
			"user_id", created.ID,
			"parent_id", *created.TreeParentID,
			"level", created.TreeLevel,
			"position", created.TreePosition,
		)
	} else {
		metrics.IncPlacement("root")
	}
	return created, nil
}

// createWithReferralCode 生成推荐码并创建用户，推荐码冲突时在保存点内重试
func createWithReferralCode(tx *gorm.DB, repo repository.UserRepository, user *models.User) error {
	for i := 0; i < referralCodeMaxRetry; i++ {
		code, err := generateReferralCode()
		if err != nil {
			return err
		}
		user.ReferralCode = code
		err = tx.Transaction(func(sp *gorm.DB) error {
			return repo.WithTx(sp).Create(user)
		})
		if err == nil {
			return nil
		}
		if !isReferralCodeViolation(err) {
			return err
		}
	}
	return ErrReferralCodeExhaust
}

// GetUser 获取用户
func (s *UserService) GetUser(userID string) (*models.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, wrapStorage("load user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetTree 获取用户树节点、父节点及有序子节点
func (s *UserService) GetTree(userID string) (*TreeView, error) {
	user, err := s.GetUser(userID)
	if err != nil {
		return nil, err
	}
	view := &TreeView{User: user}
	if user.TreeParentID != nil {
		parent, err := s.userRepo.GetByID(*user.TreeParentID)
		if err != nil {
			return nil, wrapStorage("load tree parent", err)
		}
		view.Parent = parent
	}
	children, err := s.userRepo.ListTreeChildren(user.ID)
	if err != nil {
		return nil, wrapStorage("load tree children", err)
	}
	view.Children = children
	return view, nil
}

// SetSuspended 设置用户停用状态
func (s *UserService) SetSuspended(userID string, suspended bool) (*models.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	found, err := s.userRepo.SetSuspended(userID, suspended)
	if err != nil {
		return nil, wrapStorage("update suspension", err)
	}
	if !found {
		return nil, ErrUserNotFound
	}
	logger.Infow("user_suspension_changed", "user_id", userID, "suspended", suspended)
	return s.GetUser(userID)
}

// ListUsers 用户列表
func (s *UserService) ListUsers(filter repository.UserListFilter) ([]models.User, int64, error) {
	return s.userRepo.List(filter)
}

func generateReferralCode() (string, error) {
	var builder strings.Builder
	builder.Grow(len(constants.ReferralCodePrefix) + referralCodeDigits)
	builder.WriteString(constants.ReferralCodePrefix)
	max := big.NewInt(10)
	for i := 0; i < referralCodeDigits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(byte('0' + n.Int64()))
	}
	return builder.String(), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func isReferralCodeViolation(err error) bool {
	return isUniqueViolation(err) && strings.Contains(strings.ToLower(err.Error()), "referral_code")
}

func isTreeSlotViolation(err error) bool {
	if !isUniqueViolation(err) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "idx_user_tree_slot") || strings.Contains(msg, "tree_parent_id")
}
