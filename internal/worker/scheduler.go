package worker

import (
	"strings"

	"github.com/dujiao-next/referral-ledger/internal/config"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/queue"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

// reconcileEnqueuer 对账任务投递方
type reconcileEnqueuer interface {
	EnqueueLedgerReconcile(payload queue.LedgerReconcilePayload, opts ...asynq.Option) (bool, error)
}

// Scheduler 定时投递对账任务
type Scheduler struct {
	cron *cron.Cron
	spec string
}

// NewScheduler 按配置创建定时器，未启用时返回 nil
func NewScheduler(cfg config.ReconcileConfig, enqueuer reconcileEnqueuer) (*Scheduler, error) {
	spec := strings.TrimSpace(cfg.Cron)
	if !cfg.Enabled || spec == "" || enqueuer == nil {
		return nil, nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	includeUsers := cfg.IncludeUsers
	_, err := c.AddFunc(spec, func() {
		queued, err := enqueuer.EnqueueLedgerReconcile(queue.LedgerReconcilePayload{
			IncludeUsers: includeUsers,
			Trigger:      "cron",
		})
		if err != nil {
			logger.Warnw("worker_reconcile_schedule_enqueue_failed", "error", err)
			return
		}
		logger.Debugw("worker_reconcile_scheduled", "queued", queued)
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, spec: spec}, nil
}

// Start 启动定时器
func (s *Scheduler) Start() {
	if s == nil || s.cron == nil {
		return
	}
	s.cron.Start()
	logger.Infow("worker_reconcile_scheduler_started", "cron", s.spec)
}

// Stop 停止定时器并等待正在执行的投递结束
func (s *Scheduler) Stop() {
	if s == nil || s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
