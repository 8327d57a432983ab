package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal defaults failed: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN == "" {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Commission.MaxTreeLevels != 20 || !cfg.Commission.Async {
		t.Fatalf("unexpected commission defaults: %+v", cfg.Commission)
	}
	if cfg.Placement.MaxDepth != 20 || cfg.Placement.MaxAttempts != 5 {
		t.Fatalf("unexpected placement defaults: %+v", cfg.Placement)
	}
	if cfg.Ledger.WithdrawMaxAttempts != 3 || cfg.Ledger.WithdrawInitialBackoff() != 100*time.Millisecond {
		t.Fatalf("unexpected ledger defaults: %+v", cfg.Ledger)
	}
	if cfg.Reconcile.Cron != "@every 1h" || cfg.Reconcile.BatchSize != 200 {
		t.Fatalf("unexpected reconcile defaults: %+v", cfg.Reconcile)
	}
	if cfg.Queue.Queues["critical"] == 0 || cfg.Queue.MaxRetry != 10 {
		t.Fatalf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("unexpected metrics path %s", cfg.Metrics.Path)
	}
}

func TestParseTolerance(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{raw: "", want: "0.01"},
		{raw: "abc", want: "0.01"},
		{raw: "-1", want: "0.01"},
		{raw: "0", want: "0.01"},
		{raw: " 0.05 ", want: "0.05"},
	}
	for _, tc := range cases {
		if got := parseTolerance(tc.raw); got.String() != tc.want {
			t.Fatalf("parseTolerance(%q) want %s got %s", tc.raw, tc.want, got.String())
		}
	}
	if got := (CommissionConfig{Tolerance: "0.02"}).ToleranceDecimal(); got.String() != "0.02" {
		t.Fatalf("commission tolerance want 0.02 got %s", got.String())
	}
}
