package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dujiao-next/referral-ledger/internal/config"
	"github.com/dujiao-next/referral-ledger/internal/metrics"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/provider"
	"github.com/dujiao-next/referral-ledger/internal/router"
	"github.com/dujiao-next/referral-ledger/internal/worker"

	gormlogger "gorm.io/gorm/logger"
)

// PrepareDatabase 初始化数据库连接并执行迁移（服务、种子与命令行工具共用）
func PrepareDatabase(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, gormLogLevel(cfg.Server.Mode)); err != nil {
		return fmt.Errorf("数据库初始化失败: %w", err)
	}
	if err := models.AutoMigrate(); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	if cfg.Metrics.Enabled {
		metrics.Init()
	}
	return nil
}

func gormLogLevel(mode string) gormlogger.LogLevel {
	if strings.EqualFold(strings.TrimSpace(mode), "debug") {
		return gormlogger.Info
	}
	return gormlogger.Warn
}

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	container := provider.NewContainer(cfg)

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		httpService := NewHTTPService(addr, engine)
		services = append(services, httpService)
	}

	// 初始化 Worker 服务（含定时对账）
	if mode == ModeAll || mode == ModeWorker {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(cfg, consumer)
		if err != nil {
			if mode == ModeWorker {
				return nil, err
			}
			// all 模式下队列关闭时，订单事件走同步分配
			container.Config.Commission.Async = false
		} else {
			services = append(services, workerService)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
