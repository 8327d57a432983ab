package service

import (
	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/metrics"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/repository"

	"gorm.io/gorm"
)

// maxAncestorWalk 向上查找树根的最大步数
const maxAncestorWalk = 4096

// PlacementOptions 树节点放置配置
type PlacementOptions struct {
	MaxDepth    int
	MaxAttempts int
}

// Placement 树节点放置结果
type Placement struct {
	ParentID string `json:"parent_id"`
	Level    int    `json:"level"`
	Position int    `json:"position"`
}

// TreePlacementService 推荐树放置服务（全局广度优先）
type TreePlacementService struct {
	userRepo repository.UserRepository
	options  PlacementOptions
}

// NewTreePlacementService 创建树放置服务
func NewTreePlacementService(userRepo repository.UserRepository, options PlacementOptions) *TreePlacementService {
	if options.MaxDepth <= 1 {
		options.MaxDepth = constants.DefaultMaxTreeDepth
	}
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = 5
	}
	return &TreePlacementService{userRepo: userRepo, options: options}
}

// Place 为推荐人所在的整棵树查找下一个空闲槽位（只读，不占用槽位）
func (s *TreePlacementService) Place(referrerID string) (*Placement, error) {
	return s.placeWith(s.userRepo, referrerID)
}

// PlaceAndReserveTx 在事务内查找槽位并原子占用，槽位被并发抢占时返回 ErrPlacementConflict
func (s *TreePlacementService) PlaceAndReserveTx(tx *gorm.DB, referrerID string) (*Placement, error) {
	repo := s.userRepo.WithTx(tx)
	placement, err := s.placeWith(repo, referrerID)
	if err != nil {
		return nil, err
	}
	reserved, err := repo.TryReserveChildSlot(placement.ParentID, constants.TreeMaxChildren)
	if err != nil {
		return nil, wrapStorage("reserve tree slot", err)
	}
	if !reserved {
		metrics.IncPlacement("conflict")
		logger.Warnw("tree_placement_slot_conflict",
			"referrer_id", referrerID,
			"parent_id", placement.ParentID,
			"position", placement.Position,
		)
		return nil, ErrPlacementConflict
	}
	return placement, nil
}

func (s *TreePlacementService) placeWith(repo repository.UserRepository, referrerID string) (*Placement, error) {
	referrer, err := repo.GetByID(referrerID)
	if err != nil {
		return nil, wrapStorage("load referrer", err)
	}
	if referrer == nil {
		return nil, ErrReferrerNotFound
	}
	root, err := findTreeRoot(repo, referrer)
	if err != nil {
		return nil, err
	}

	frontier := []models.User{*root}
	for len(frontier) > 0 {
		for _, node := range frontier {
			if node.TreeChildCount < constants.TreeMaxChildren {
				return &Placement{
					ParentID: node.ID,
					Level:    node.TreeLevel + 1,
					Position: node.TreeChildCount,
				}, nil
			}
		}
		// 下一层节点的子节点（根为第 1 层）不能超过深度上限
		if frontier[0].TreeLevel-root.TreeLevel+3 > s.options.MaxDepth {
			break
		}
		frontier, err = nextTreeLevel(repo, frontier)
		if err != nil {
			return nil, err
		}
	}
	metrics.IncPlacement("tree_full")
	logger.Errorw("tree_placement_depth_exhausted",
		"referrer_id", referrerID,
		"root_id", root.ID,
		"max_depth", s.options.MaxDepth,
	)
	return nil, ErrTreeFull
}

// findTreeRoot 沿父节点向上查找树根，出现断链或环时返回 ErrBrokenTree
func findTreeRoot(repo repository.UserRepository, start *models.User) (*models.User, error) {
	current := start
	visited := map[string]struct{}{current.ID: {}}
	for steps := 0; current.TreeParentID != nil; steps++ {
		if steps >= maxAncestorWalk {
			return nil, ErrBrokenTree
		}
		parent, err := repo.GetByID(*current.TreeParentID)
		if err != nil {
			return nil, wrapStorage("load tree parent", err)
		}
		if parent == nil {
			return nil, ErrBrokenTree
		}
		if _, seen := visited[parent.ID]; seen {
			return nil, ErrBrokenTree
		}
		visited[parent.ID] = struct{}{}
		current = parent
	}
	return current, nil
}

// nextTreeLevel 按父节点出队顺序拼接下一层子节点（同一父节点内按创建时间升序）
func nextTreeLevel(repo repository.UserRepository, frontier []models.User) ([]models.User, error) {
	parentIDs := make([]string, 0, len(frontier))
	for _, node := range frontier {
		parentIDs = append(parentIDs, node.ID)
	}
	children, err := repo.ListTreeChildrenOf(parentIDs)
	if err != nil {
		return nil, wrapStorage("load tree children", err)
	}
	byParent := make(map[string][]models.User, len(frontier))
	for _, child := range children {
		if child.TreeParentID == nil {
			continue
		}
		byParent[*child.TreeParentID] = append(byParent[*child.TreeParentID], child)
	}
	next := make([]models.User, 0, len(children))
	for _, id := range parentIDs {
		next = append(next, byParent[id]...)
	}
	return next, nil
}
