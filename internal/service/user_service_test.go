package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/repository"
)

func fillChildren(t *testing.T, env *serviceTestEnv, parent *models.User, prefix string, n int) []*models.User {
	t.Helper()
	children := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		children = append(children, insertUser(t, env.db, fmt.Sprintf("%s-%d", prefix, i), parent, nil))
	}
	return children
}

func TestTreePlacementUnderRootWhenCapacityRemains(t *testing.T) {
	env := setupServiceTest(t, "placement_root")
	root := insertUser(t, env.db, "root", nil, nil)
	fillChildren(t, env, root, "kid", 3)

	placement, err := env.placement.Place(root.ID)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if placement.ParentID != root.ID || placement.Level != root.TreeLevel+1 || placement.Position != 3 {
		t.Fatalf("unexpected placement: %+v", placement)
	}
}

func TestTreePlacementSpillsOverBreadthFirst(t *testing.T) {
	env := setupServiceTest(t, "placement_spillover")
	root := insertUser(t, env.db, "root", nil, nil)
	kids := fillChildren(t, env, root, "kid", constants.TreeMaxChildren)
	fillChildren(t, env, kids[0], "g0", constants.TreeMaxChildren)
	fillChildren(t, env, kids[1], "g1", 2)

	// 从最深处的推荐人出发，依旧回到根开始广度优先
	placement, err := env.placement.Place("g0-4")
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if placement.ParentID != kids[1].ID || placement.Level != root.TreeLevel+2 || placement.Position != 2 {
		t.Fatalf("unexpected placement: %+v", placement)
	}
}

func TestTreePlacementLandsUnderEarliestGrandchildWhenLevelFull(t *testing.T) {
	env := setupServiceTest(t, "placement_grandchild")
	root := insertUser(t, env.db, "root", nil, nil)
	kids := fillChildren(t, env, root, "kid", constants.TreeMaxChildren)
	var firstGrandchild *models.User
	for i, kid := range kids {
		grandchildren := fillChildren(t, env, kid, fmt.Sprintf("g%d", i), constants.TreeMaxChildren)
		if i == 0 {
			firstGrandchild = grandchildren[0]
		}
	}

	placement, err := env.placement.Place(kids[3].ID)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if placement.ParentID != firstGrandchild.ID || placement.Level != root.TreeLevel+3 || placement.Position != 0 {
		t.Fatalf("unexpected placement: %+v", placement)
	}
}

func TestTreePlacementErrors(t *testing.T) {
	env := setupServiceTest(t, "placement_errors")
	if _, err := env.placement.Place("ghost"); !errors.Is(err, ErrReferrerNotFound) {
		t.Fatalf("expected referrer not found, got %v", err)
	}

	root := insertUser(t, env.db, "root", nil, nil)
	child := insertUser(t, env.db, "child", root, nil)
	if err := env.db.Model(&models.User{}).Where("id = ?", root.ID).Update("tree_parent_id", child.ID).Error; err != nil {
		t.Fatalf("create cycle failed: %v", err)
	}
	if _, err := env.placement.Place(child.ID); !errors.Is(err, ErrBrokenTree) {
		t.Fatalf("expected broken tree for cycle, got %v", err)
	}

	orphan := insertUser(t, env.db, "orphan", nil, nil)
	if err := env.db.Model(&models.User{}).Where("id = ?", orphan.ID).Update("tree_parent_id", "missing").Error; err != nil {
		t.Fatalf("break parent failed: %v", err)
	}
	if _, err := env.placement.Place(orphan.ID); !errors.Is(err, ErrBrokenTree) {
		t.Fatalf("expected broken tree for dangling parent, got %v", err)
	}
}

func TestTreePlacementDepthLimit(t *testing.T) {
	env := setupServiceTest(t, "placement_depth")
	root := insertUser(t, env.db, "root", nil, nil)
	fillChildren(t, env, root, "kid", constants.TreeMaxChildren)

	shallow := NewTreePlacementService(env.userRepo, PlacementOptions{MaxDepth: 2})
	if _, err := shallow.Place(root.ID); !errors.Is(err, ErrTreeFull) {
		t.Fatalf("expected tree full, got %v", err)
	}
	deeper := NewTreePlacementService(env.userRepo, PlacementOptions{MaxDepth: 3})
	placement, err := deeper.Place(root.ID)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if placement.Level != 3 {
		t.Fatalf("expected level 3, got %d", placement.Level)
	}
}

func TestUserRegisterPlacesAndReservesSlot(t *testing.T) {
	env := setupServiceTest(t, "user_register")
	root, err := env.users.Register(RegisterInput{UserID: "root"})
	if err != nil {
		t.Fatalf("register root failed: %v", err)
	}
	if !root.IsTreeRoot() || root.TreeLevel != constants.TreeRootLevel {
		t.Fatalf("expected root at level 1, got %+v", root)
	}
	if !strings.HasPrefix(root.ReferralCode, constants.ReferralCodePrefix) || len(root.ReferralCode) != 9 {
		t.Fatalf("unexpected referral code: %s", root.ReferralCode)
	}

	for i := 0; i < constants.TreeMaxChildren+1; i++ {
		user, err := env.users.Register(RegisterInput{
			UserID:       fmt.Sprintf("member-%d", i),
			ReferralCode: strings.ToLower(root.ReferralCode),
		})
		if err != nil {
			t.Fatalf("register member %d failed: %v", i, err)
		}
		if user.ReferredByCode == nil || *user.ReferredByCode != root.ReferralCode {
			t.Fatalf("member %d should be referred by root", i)
		}
		if i < constants.TreeMaxChildren {
			if *user.TreeParentID != root.ID || user.TreePosition != i || user.TreeLevel != 2 {
				t.Fatalf("member %d unexpected slot: parent=%s pos=%d level=%d", i, *user.TreeParentID, user.TreePosition, user.TreeLevel)
			}
			continue
		}
		// 根已满，溢出到最早创建的子节点
		if *user.TreeParentID != "member-0" || user.TreeLevel != 3 || user.TreePosition != 0 {
			t.Fatalf("spillover member unexpected slot: parent=%s level=%d", *user.TreeParentID, user.TreeLevel)
		}
	}

	stored := reloadUser(t, env.db, root.ID)
	if stored.TreeChildCount != constants.TreeMaxChildren {
		t.Fatalf("expected root child count %d, got %d", constants.TreeMaxChildren, stored.TreeChildCount)
	}

	view, err := env.users.GetTree("member-0")
	if err != nil {
		t.Fatalf("get tree failed: %v", err)
	}
	if view.Parent == nil || view.Parent.ID != root.ID || len(view.Children) != 1 {
		t.Fatalf("unexpected tree view: parent=%v children=%d", view.Parent, len(view.Children))
	}
}

func TestUserRegisterErrors(t *testing.T) {
	env := setupServiceTest(t, "user_register_errors")
	if _, err := env.users.Register(RegisterInput{UserID: "dup"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := env.users.Register(RegisterInput{UserID: "dup"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected user exists, got %v", err)
	}
	if _, err := env.users.Register(RegisterInput{ReferrerID: "ghost"}); !errors.Is(err, ErrReferrerNotFound) {
		t.Fatalf("expected referrer not found, got %v", err)
	}
	if _, err := env.users.Register(RegisterInput{ReferralCode: "REF000000"}); !errors.Is(err, ErrReferrerNotFound) {
		t.Fatalf("expected referrer not found by code, got %v", err)
	}
	if _, err := env.users.Register(RegisterInput{ReferralCode: "BAD"}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}

	generated, err := env.users.Register(RegisterInput{})
	if err != nil {
		t.Fatalf("register without id failed: %v", err)
	}
	if generated.ID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestUserSuspensionAndList(t *testing.T) {
	env := setupServiceTest(t, "user_suspension")
	root := insertUser(t, env.db, "root", nil, nil)
	insertUser(t, env.db, "kid", root, nil)

	if _, err := env.users.SetSuspended("ghost", true); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
	user, err := env.users.SetSuspended("kid", true)
	if err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if !user.Suspended {
		t.Fatalf("expected suspended user")
	}

	suspended := true
	rows, total, err := env.users.ListUsers(repository.UserListFilter{Suspended: &suspended})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || rows[0].ID != "kid" {
		t.Fatalf("unexpected suspended list: total=%d", total)
	}
}

func TestTreeCapacityInvariantAfterManyRegistrations(t *testing.T) {
	env := setupServiceTest(t, "tree_capacity")
	root, err := env.users.Register(RegisterInput{UserID: "root"})
	if err != nil {
		t.Fatalf("register root failed: %v", err)
	}
	for i := 0; i < 40; i++ {
		if _, err := env.users.Register(RegisterInput{
			UserID:     fmt.Sprintf("u%02d", i),
			ReferrerID: root.ID,
		}); err != nil {
			t.Fatalf("register %d failed: %v", i, err)
		}
	}

	var users []models.User
	if err := env.db.Find(&users).Error; err != nil {
		t.Fatalf("load users failed: %v", err)
	}
	byID := make(map[string]models.User, len(users))
	children := make(map[string]int, len(users))
	for _, user := range users {
		byID[user.ID] = user
		if user.TreeParentID != nil {
			children[*user.TreeParentID]++
		}
	}
	for _, user := range users {
		if children[user.ID] > constants.TreeMaxChildren {
			t.Fatalf("user %s has %d children", user.ID, children[user.ID])
		}
		if children[user.ID] != user.TreeChildCount {
			t.Fatalf("user %s child count %d != actual %d", user.ID, user.TreeChildCount, children[user.ID])
		}
		if user.TreeParentID == nil {
			continue
		}
		parent := byID[*user.TreeParentID]
		if user.TreeLevel != parent.TreeLevel+1 {
			t.Fatalf("user %s level %d, parent level %d", user.ID, user.TreeLevel, parent.TreeLevel)
		}
	}
	// 1 + 5 + 25 = 31，剩余 10 个落在第 4 层
	level4 := 0
	for _, user := range users {
		if user.TreeLevel == 4 {
			level4++
		}
	}
	if level4 != 10 {
		t.Fatalf("expected 10 users at level 4, got %d", level4)
	}
}

func TestUserRegisterConcurrentForLastFreeSlot(t *testing.T) {
	env := setupServiceTest(t, "register_concurrent")
	root := insertUser(t, env.db, "root", nil, nil)
	kids := fillChildren(t, env, root, "kid", constants.TreeMaxChildren-1)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, id := range []string{"racer-1", "racer-2"} {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			if _, err := env.users.Register(RegisterInput{UserID: userID, ReferrerID: root.ID}); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent register failed: %v", err)
	}

	reloaded := reloadUser(t, env.db, root.ID)
	if reloaded.TreeChildCount != constants.TreeMaxChildren {
		t.Fatalf("root child count want %d got %d", constants.TreeMaxChildren, reloaded.TreeChildCount)
	}
	underRoot, spilled := 0, 0
	for _, id := range []string{"racer-1", "racer-2"} {
		user := reloadUser(t, env.db, id)
		switch {
		case user.TreeParentID != nil && *user.TreeParentID == root.ID:
			underRoot++
			if user.TreePosition != constants.TreeMaxChildren-1 || user.TreeLevel != root.TreeLevel+1 {
				t.Fatalf("unexpected slot under root: %+v", user)
			}
		case user.TreeParentID != nil && *user.TreeParentID == kids[0].ID:
			spilled++
			if user.TreePosition != 0 || user.TreeLevel != root.TreeLevel+2 {
				t.Fatalf("unexpected spillover slot: %+v", user)
			}
		default:
			t.Fatalf("user %s placed under unexpected parent %v", id, user.TreeParentID)
		}
	}
	if underRoot != 1 || spilled != 1 {
		t.Fatalf("want one racer under root and one spilled, got %d/%d", underRoot, spilled)
	}
}
