package repository

import (
	"testing"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/models"
)

func TestUserRepositoryTryReserveChildSlotRespectsCapacity(t *testing.T) {
	db := setupRepositoryTestDB(t, "user_repo_slot")
	repo := NewUserRepository(db)

	root := &models.User{ID: "root", ReferralCode: "REF000001", TreeLevel: 1}
	if err := repo.Create(root); err != nil {
		t.Fatalf("create root failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		ok, err := repo.TryReserveChildSlot("root", 5)
		if err != nil {
			t.Fatalf("reserve slot %d failed: %v", i, err)
		}
		if !ok {
			t.Fatalf("reserve slot %d should succeed", i)
		}
	}
	ok, err := repo.TryReserveChildSlot("root", 5)
	if err != nil {
		t.Fatalf("reserve sixth slot failed: %v", err)
	}
	if ok {
		t.Fatalf("sixth slot should be rejected")
	}

	reloaded, err := repo.GetByID("root")
	if err != nil || reloaded == nil {
		t.Fatalf("reload root failed: %v", err)
	}
	if reloaded.TreeChildCount != 5 {
		t.Fatalf("child count want 5 got %d", reloaded.TreeChildCount)
	}

	ok, err = repo.TryReserveChildSlot("missing", 5)
	if err != nil {
		t.Fatalf("reserve missing parent failed: %v", err)
	}
	if ok {
		t.Fatalf("missing parent should not reserve")
	}
}

func TestUserRepositoryListTreeChildrenOrderedByCreation(t *testing.T) {
	db := setupRepositoryTestDB(t, "user_repo_children")
	repo := NewUserRepository(db)
	base := time.Now().UTC().Add(-time.Hour)

	if err := repo.Create(&models.User{ID: "root", ReferralCode: "REF100000", TreeLevel: 1, CreatedAt: base}); err != nil {
		t.Fatalf("create root failed: %v", err)
	}
	children := []models.User{
		{ID: "c-late", ReferralCode: "REF100003", TreeParentID: strPtr("root"), TreeLevel: 2, TreePosition: 2, CreatedAt: base.Add(3 * time.Minute)},
		{ID: "c-early", ReferralCode: "REF100001", TreeParentID: strPtr("root"), TreeLevel: 2, TreePosition: 0, CreatedAt: base.Add(time.Minute)},
		{ID: "c-mid", ReferralCode: "REF100002", TreeParentID: strPtr("root"), TreeLevel: 2, TreePosition: 1, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range children {
		if err := repo.Create(&children[i]); err != nil {
			t.Fatalf("create child failed: %v", err)
		}
	}

	rows, err := repo.ListTreeChildren("root")
	if err != nil {
		t.Fatalf("list children failed: %v", err)
	}
	want := []string{"c-early", "c-mid", "c-late"}
	if len(rows) != len(want) {
		t.Fatalf("children len want %d got %d", len(want), len(rows))
	}
	for i, id := range want {
		if rows[i].ID != id {
			t.Fatalf("children[%d] want %s got %s", i, id, rows[i].ID)
		}
	}
}

func TestUserRepositoryTreeSlotUniqueIndex(t *testing.T) {
	db := setupRepositoryTestDB(t, "user_repo_unique_slot")
	repo := NewUserRepository(db)

	if err := repo.Create(&models.User{ID: "root", ReferralCode: "REF200000", TreeLevel: 1}); err != nil {
		t.Fatalf("create root failed: %v", err)
	}
	if err := repo.Create(&models.User{ID: "a", ReferralCode: "REF200001", TreeParentID: strPtr("root"), TreeLevel: 2, TreePosition: 0}); err != nil {
		t.Fatalf("create first child failed: %v", err)
	}
	if err := repo.Create(&models.User{ID: "b", ReferralCode: "REF200002", TreeParentID: strPtr("root"), TreeLevel: 2, TreePosition: 0}); err == nil {
		t.Fatalf("duplicate slot should violate unique index")
	}
}

func TestUserRepositoryGetByReferralCodeAndSuspend(t *testing.T) {
	db := setupRepositoryTestDB(t, "user_repo_code")
	repo := NewUserRepository(db)

	if err := repo.Create(&models.User{ID: "u1", ReferralCode: "REF300001", TreeLevel: 1}); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	user, err := repo.GetByReferralCode(" ref300001 ")
	if err != nil {
		t.Fatalf("get by code failed: %v", err)
	}
	if user == nil || user.ID != "u1" {
		t.Fatalf("expected u1, got %+v", user)
	}
	missing, err := repo.GetByReferralCode("REF999999")
	if err != nil || missing != nil {
		t.Fatalf("missing code should return nil,nil got %+v %v", missing, err)
	}

	found, err := repo.SetSuspended("u1", true)
	if err != nil || !found {
		t.Fatalf("suspend failed: found=%v err=%v", found, err)
	}
	suspended := true
	rows, total, err := repo.List(UserListFilter{Page: 1, PageSize: 10, Suspended: &suspended})
	if err != nil {
		t.Fatalf("list suspended failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || !rows[0].Suspended {
		t.Fatalf("suspended list mismatch: total=%d rows=%+v", total, rows)
	}
}

func TestUserTableHasNoSoftDelete(t *testing.T) {
	db := setupRepositoryTestDB(t, "user_repo_no_soft_delete")
	if db.Migrator().HasColumn(&models.User{}, "deleted_at") {
		t.Fatalf("users must not carry a soft delete column")
	}
	repo := NewUserRepository(db)
	root := &models.User{ID: "root", ReferralCode: "REF000001", TreeLevel: 1}
	if err := repo.Create(root); err != nil {
		t.Fatalf("create root failed: %v", err)
	}
	if err := db.Delete(&models.User{}, "id = ?", root.ID).Error; err != nil {
		t.Fatalf("delete root failed: %v", err)
	}
	var remaining int64
	if err := db.Unscoped().Model(&models.User{}).Where("id = ?", root.ID).Count(&remaining).Error; err != nil {
		t.Fatalf("count users failed: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("delete must remove the row, %d left", remaining)
	}
}
