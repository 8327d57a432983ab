package cache

import (
	"context"
	"testing"

	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/models"
)

func TestCommissionCacheDisabledIsNoop(t *testing.T) {
	if Enabled() {
		t.Skip("redis enabled in this process")
	}
	ctx := context.Background()
	record := &models.CommissionTransaction{OrderID: "order-1", Status: constants.CommissionStatusCompleted}
	if err := SetCommission(ctx, record); err != nil {
		t.Fatalf("set commission should be noop, got %v", err)
	}
	got, hit, err := GetCommission(ctx, "order-1")
	if err != nil || hit || got != nil {
		t.Fatalf("disabled cache must miss: hit=%v err=%v", hit, err)
	}
}

func TestCommissionKey(t *testing.T) {
	if got := commissionKey(" ord-9 "); got != "commission:order:ord-9" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestBuildKeyUsesPrefix(t *testing.T) {
	previous := redisPrefix
	redisPrefix = "rl"
	defer func() { redisPrefix = previous }()
	if got := buildKey("commission:order:1"); got != "rl:commission:order:1" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := buildKey("  "); got != "rl" {
		t.Fatalf("empty key should return prefix, got %s", got)
	}
}

func TestDisabledRedisHelpersAreNoop(t *testing.T) {
	if Enabled() {
		t.Skip("redis enabled in this process")
	}
	if err := Ping(context.Background()); err != nil {
		t.Fatalf("ping should be noop, got %v", err)
	}
	found, err := GetJSON(context.Background(), "missing", &struct{}{})
	if err != nil || found {
		t.Fatalf("get json should be noop, got %v %v", found, err)
	}
	if err := Close(); err != nil {
		t.Fatalf("close should be noop, got %v", err)
	}
}
