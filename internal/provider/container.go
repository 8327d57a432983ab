package provider

import (
	"github.com/dujiao-next/referral-ledger/internal/cache"
	"github.com/dujiao-next/referral-ledger/internal/config"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/queue"
	"github.com/dujiao-next/referral-ledger/internal/repository"
	"github.com/dujiao-next/referral-ledger/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client

	// Repositories
	UserRepo              repository.UserRepository
	CommissionRepo        repository.CommissionRepository
	FundRepo              repository.FundRepository
	EarningRepo           repository.EarningRepository
	ReconciliationLogRepo repository.ReconciliationLogRepository

	// Services
	PlacementService      *service.TreePlacementService
	UserService           *service.UserService
	LedgerService         *service.LedgerService
	CommissionService     *service.CommissionService
	WalletService         *service.WalletService
	ReconciliationService *service.ReconciliationService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}
	return NewContainerWithDB(cfg, models.DB, queueClient)
}

// NewContainerWithDB 基于指定数据库连接装配仓储与服务（命令行工具与测试复用）
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, queueClient *queue.Client) *Container {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if queueClient == nil {
		queueClient, _ = queue.NewClient(nil)
	}
	c := &Container{
		Config:      cfg,
		DB:          db,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories(db)

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.UserRepo = repository.NewUserRepository(db)
	c.CommissionRepo = repository.NewCommissionRepository(db)
	c.FundRepo = repository.NewFundRepository(db)
	c.EarningRepo = repository.NewEarningRepository(db)
	c.ReconciliationLogRepo = repository.NewReconciliationLogRepository(db)
}

func (c *Container) initServices() {
	cfg := c.Config
	c.PlacementService = service.NewTreePlacementService(c.UserRepo, service.PlacementOptions{
		MaxDepth:    cfg.Placement.MaxDepth,
		MaxAttempts: cfg.Placement.MaxAttempts,
	})
	c.UserService = service.NewUserService(c.UserRepo, c.PlacementService)
	c.LedgerService = service.NewLedgerService(c.FundRepo, c.ReconciliationLogRepo, service.LedgerOptions{
		WithdrawMaxAttempts:    cfg.Ledger.WithdrawMaxAttempts,
		WithdrawInitialBackoff: cfg.Ledger.WithdrawInitialBackoff(),
		ReconcileTolerance:     cfg.Ledger.ReconcileToleranceDecimal(),
	})
	c.CommissionService = service.NewCommissionService(c.CommissionRepo, c.UserRepo, c.EarningRepo, c.LedgerService, service.CommissionOptions{
		MaxTreeLevels: cfg.Commission.MaxTreeLevels,
		Tolerance:     cfg.Commission.ToleranceDecimal(),
	})
	c.WalletService = service.NewWalletService(c.UserRepo, c.EarningRepo)
	c.ReconciliationService = service.NewReconciliationService(c.LedgerService, c.UserRepo, c.EarningRepo, c.ReconciliationLogRepo, service.ReconcileOptions{
		IncludeUsers: cfg.Reconcile.IncludeUsers,
		BatchSize:    cfg.Reconcile.BatchSize,
		Tolerance:    cfg.Ledger.ReconcileToleranceDecimal(),
	})
}
