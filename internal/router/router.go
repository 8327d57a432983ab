package router

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/cache"
	"github.com/dujiao-next/referral-ledger/internal/config"
	adminhandlers "github.com/dujiao-next/referral-ledger/internal/http/handlers/admin"
	eventhandlers "github.com/dujiao-next/referral-ledger/internal/http/handlers/events"
	"github.com/dujiao-next/referral-ledger/internal/http/response"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 2 * time.Second

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按事件入口/后台分组）
	eventHandler := eventhandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "rl"
	}
	adminWriteRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_write", redisPrefix),
		WindowSeconds: cfg.Security.RateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.RateLimit.MaxRequests,
		BlockSeconds:  cfg.Security.RateLimit.BlockSeconds,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	if cfg.Metrics.Enabled {
		r.Use(MetricsMiddleware())
	}

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 上游事件入口
		events := apiV1.Group("/events")
		events.Use(AdminKeyMiddleware(cfg.Security.AdminKeys))
		{
			events.POST("/order-completed", eventHandler.OrderCompleted)
			events.POST("/signup", eventHandler.Signup)
		}

		// 管理端接口
		admin := apiV1.Group("/admin")
		admin.Use(AdminKeyMiddleware(cfg.Security.AdminKeys))
		admin.Use(RateLimitMiddleware(cache.Client(), adminWriteRule, KeyByAdminKeyAndIP))
		{
			admin.GET("/funds", adminHandler.ListFunds)
			admin.GET("/funds/:type", adminHandler.GetFund)
			admin.GET("/funds/:type/transactions", adminHandler.ListFundTransactions)
			admin.POST("/funds/:type/withdraw", adminHandler.WithdrawFund)

			admin.POST("/reconcile", adminHandler.RunReconcile)
			admin.POST("/reconcile/users", adminHandler.RunReconcileUsers)
			admin.GET("/reconciliation-logs", adminHandler.ListReconciliationLogs)

			admin.GET("/commissions", adminHandler.ListCommissions)
			admin.GET("/commissions/:order_id", adminHandler.GetCommission)

			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.GET("/users/:id/tree", adminHandler.GetUserTree)
			admin.PUT("/users/:id/suspension", adminHandler.UpdateUserSuspension)
			admin.POST("/users/:id/wallet/withdraw", adminHandler.WithdrawUserWallet)
			admin.GET("/users/:id/earnings", adminHandler.ListUserEarnings)

			admin.GET("/routes", func(ctx *gin.Context) {
				response.Success(ctx, buildAdminRouteCatalog(r))
			})
		}
	}

	if cfg.Metrics.Enabled {
		path := strings.TrimSpace(cfg.Metrics.Path)
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	// 健康检查
	r.GET("/healthz", healthHandler(c))

	return r
}

func healthHandler(c *provider.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), healthCheckTimeout)
		defer cancel()

		status := gin.H{"database": "ok", "redis": "ok"}
		healthy := true
		if err := pingDatabase(checkCtx, c); err != nil {
			status["database"] = err.Error()
			healthy = false
		}
		if err := cache.Ping(checkCtx); err != nil {
			status["redis"] = err.Error()
			healthy = false
		}
		if !healthy {
			logger.Warnw("health_check_failed", "status", status)
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": status})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "checks": status})
	}
}

func pingDatabase(ctx context.Context, c *provider.Container) error {
	if c == nil || c.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type adminRouteCatalogItem struct {
	Module string `json:"module"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

func buildAdminRouteCatalog(engine *gin.Engine) []adminRouteCatalogItem {
	if engine == nil {
		return []adminRouteCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminRouteCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		key := method + ":" + item.Path
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, adminRouteCatalogItem{
			Module: deriveAdminRouteModule(item.Path),
			Method: method,
			Path:   item.Path,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Path == items[j].Path {
				return items[i].Method < items[j].Method
			}
			return items[i].Path < items[j].Path
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveAdminRouteModule(path string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(path), "/api/v1/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	switch segments[1] {
	case "reconcile", "reconciliation-logs":
		return "reconcile"
	default:
		return segments[1]
	}
}
