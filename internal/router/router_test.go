package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/config"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testAdminKey = "test-admin-key"

type envelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Category   string          `json:"category"`
	Data       json.RawMessage `json:"data"`
}

func setupRouterTest(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:router_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrateDB(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	cfg := &config.Config{
		Server:   config.ServerConfig{Mode: "debug"},
		Security: config.SecurityConfig{AdminKeys: []string{testAdminKey}},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	container := provider.NewContainerWithDB(cfg, db, nil)
	return SetupRouter(cfg, container)
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) envelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(adminKeyHeader, testAdminKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s: http status want 200 got %d", method, path, w.Code)
	}
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: unmarshal response failed: %v", method, path, err)
	}
	return resp
}

func TestEventsAndAdminFlow(t *testing.T) {
	r := setupRouterTest(t)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/events/signup", gin.H{"user_id": "root"})
	if resp.StatusCode != 0 {
		t.Fatalf("signup root failed: %+v", resp)
	}
	resp = doJSON(t, r, http.MethodPost, "/api/v1/events/signup", gin.H{"user_id": "buyer", "referrer_id": "root"})
	if resp.StatusCode != 0 {
		t.Fatalf("signup buyer failed: %+v", resp)
	}
	resp = doJSON(t, r, http.MethodPost, "/api/v1/events/signup", gin.H{"user_id": "orphan", "referrer_id": "missing"})
	if resp.StatusCode != 404 || resp.Category != "not_found" {
		t.Fatalf("unknown referrer want 404/not_found got %+v", resp)
	}

	resp = doJSON(t, r, http.MethodPost, "/api/v1/events/order-completed", gin.H{
		"order_id":     "order-1",
		"purchaser_id": "buyer",
		"order_amount": "100",
	})
	if resp.StatusCode != 0 {
		t.Fatalf("order completed failed: %+v", resp)
	}
	var record models.CommissionTransaction
	if err := json.Unmarshal(resp.Data, &record); err != nil {
		t.Fatalf("decode record failed: %v", err)
	}
	if !record.TotalCommission.Equal(models.MustMoney("10")) {
		t.Fatalf("total commission want 10 got %s", record.TotalCommission.String())
	}

	resp = doJSON(t, r, http.MethodPost, "/api/v1/events/order-completed", gin.H{
		"order_id":     "order-2",
		"purchaser_id": "buyer",
		"order_amount": "-1",
	})
	if resp.StatusCode != 400 || resp.Category != "validation" {
		t.Fatalf("negative amount want 400/validation got %+v", resp)
	}

	resp = doJSON(t, r, http.MethodGet, "/api/v1/admin/commissions/order-1", nil)
	if resp.StatusCode != 0 {
		t.Fatalf("get commission failed: %+v", resp)
	}
	resp = doJSON(t, r, http.MethodGet, "/api/v1/admin/commissions/order-404", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("missing commission want 404 got %+v", resp)
	}

	resp = doJSON(t, r, http.MethodGet, "/api/v1/admin/funds/trust", nil)
	var fund models.TrustFund
	if err := json.Unmarshal(resp.Data, &fund); err != nil {
		t.Fatalf("decode fund failed: %v", err)
	}
	if !fund.Balance.Equal(models.MustMoney("3")) {
		t.Fatalf("trust balance want 3 got %s", fund.Balance.String())
	}

	resp = doJSON(t, r, http.MethodPost, "/api/v1/admin/funds/trust/withdraw", gin.H{"amount": "5"})
	if resp.StatusCode != 422 || resp.Category != "consistency" {
		t.Fatalf("overdraw want 422/consistency got %+v", resp)
	}
	resp = doJSON(t, r, http.MethodPost, "/api/v1/admin/funds/bogus/withdraw", gin.H{"amount": "1"})
	if resp.StatusCode != 400 || resp.Category != "validation" {
		t.Fatalf("bad fund want 400/validation got %+v", resp)
	}
	resp = doJSON(t, r, http.MethodPost, "/api/v1/admin/funds/trust/withdraw", gin.H{"amount": "1.5", "description": "ops"})
	if resp.StatusCode != 0 {
		t.Fatalf("withdraw failed: %+v", resp)
	}

	resp = doJSON(t, r, http.MethodPost, "/api/v1/admin/users/root/wallet/withdraw", gin.H{"amount": "1"})
	if resp.StatusCode != 0 {
		t.Fatalf("wallet withdraw failed: %+v", resp)
	}
	resp = doJSON(t, r, http.MethodPut, "/api/v1/admin/users/root/suspension", gin.H{"suspended": true})
	if resp.StatusCode != 0 {
		t.Fatalf("suspend failed: %+v", resp)
	}
	resp = doJSON(t, r, http.MethodPut, "/api/v1/admin/users/root/suspension", gin.H{})
	if resp.StatusCode != 400 {
		t.Fatalf("missing suspended flag want 400 got %+v", resp)
	}

	resp = doJSON(t, r, http.MethodPost, "/api/v1/admin/reconcile", nil)
	if resp.StatusCode != 0 {
		t.Fatalf("reconcile failed: %+v", resp)
	}
	resp = doJSON(t, r, http.MethodGet, "/api/v1/admin/users/root/earnings", nil)
	if resp.StatusCode != 0 || !strings.Contains(string(resp.Data), "wallet_withdrawal") {
		t.Fatalf("earnings should list withdrawal: %+v", resp)
	}
	resp = doJSON(t, r, http.MethodGet, "/api/v1/admin/users/buyer/tree", nil)
	if resp.StatusCode != 0 || !strings.Contains(string(resp.Data), `"parent"`) {
		t.Fatalf("tree view should include parent: %+v", resp)
	}
	resp = doJSON(t, r, http.MethodGet, "/api/v1/admin/routes", nil)
	if !strings.Contains(string(resp.Data), "/api/v1/admin/funds/:type/withdraw") {
		t.Fatalf("route catalog missing withdraw route: %s", string(resp.Data))
	}
}

func TestAdminRequiresKey(t *testing.T) {
	r := setupRouterTest(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/funds", nil))
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("status_code want 401 got %d", resp.StatusCode)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	r := setupRouterTest(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("healthz want ok got %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "referral_ledger_http_request_duration_seconds") {
		t.Fatalf("metrics endpoint should expose http histogram, got %d", w.Code)
	}
}

func TestDeriveAdminRouteModule(t *testing.T) {
	cases := map[string]string{
		"/api/v1/admin/funds/:type":         "funds",
		"/api/v1/admin/reconciliation-logs": "reconcile",
		"/api/v1/admin/users/:id/earnings":  "users",
		"/api/v1/events/order-completed":    "events",
	}
	for path, want := range cases {
		if got := deriveAdminRouteModule(path); got != want {
			t.Fatalf("%s: module want %s got %s", path, want, got)
		}
	}
}
