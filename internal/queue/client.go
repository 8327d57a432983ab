package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/config"
	"github.com/dujiao-next/referral-ledger/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 资金相关任务队列
	CriticalQueue = constants.QueueCritical

	defaultMaxRetry         = 10
	commissionTaskRetention = 24 * time.Hour
	reconcileUniqueTTL      = 10 * time.Minute
)

// Client 队列客户端封装
type Client struct {
	client   *asynq.Client
	enabled  bool
	maxRetry int
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false}, nil
	}
	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	opt := buildRedisOpt(cfg)
	client := asynq.NewClient(opt)
	return &Client{
		client:   client,
		enabled:  true,
		maxRetry: maxRetry,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueCommissionDistribute 推送佣金分配任务，以订单号作为任务 ID 去重；
// 返回 false 表示同一订单的任务已在队列中
func (c *Client) EnqueueCommissionDistribute(payload OrderCompletedPayload, opts ...asynq.Option) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	task, err := NewCommissionDistributeTask(payload)
	if err != nil {
		return false, err
	}
	options := append(commissionTaskOptions(payload.OrderID, c.maxRetry), opts...)
	_, err = c.client.Enqueue(task, options...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnqueueLedgerReconcile 推送对账任务，短时间内重复推送会被合并
func (c *Client) EnqueueLedgerReconcile(payload LedgerReconcilePayload, opts ...asynq.Option) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	task, err := NewLedgerReconcileTask(payload)
	if err != nil {
		return false, err
	}
	options := append(reconcileTaskOptions(), opts...)
	_, err = c.client.Enqueue(task, options...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func commissionTaskOptions(orderID string, maxRetry int) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(CriticalQueue),
		asynq.TaskID(CommissionTaskID(orderID)),
		asynq.MaxRetry(maxRetry),
		asynq.Retention(commissionTaskRetention),
	}
}

func reconcileTaskOptions() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(DefaultQueue),
		asynq.MaxRetry(3),
		asynq.Unique(reconcileUniqueTTL),
	}
}

// CommissionTaskID 佣金分配任务 ID
func CommissionTaskID(orderID string) string {
	return fmt.Sprintf("%s:%s", TaskCommissionDistribute, strings.TrimSpace(orderID))
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{CriticalQueue: 6, DefaultQueue: 3}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
