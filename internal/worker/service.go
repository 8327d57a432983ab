package worker

import (
	"context"
	"errors"

	"github.com/dujiao-next/referral-ledger/internal/config"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 异步队列服务
type Service struct {
	name      string
	server    *asynq.Server
	mux       *asynq.ServeMux
	consumer  *Consumer
	scheduler *Scheduler
}

// NewService 创建异步队列服务
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Queue.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
	serverCfg.ErrorHandler = asynq.ErrorHandlerFunc(reportTaskError)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)

	var scheduler *Scheduler
	if consumer.Container != nil && consumer.QueueClient != nil {
		s, err := NewScheduler(cfg.Reconcile, consumer.QueueClient)
		if err != nil {
			return nil, err
		}
		scheduler = s
	}
	return &Service{
		name:      "worker",
		server:    server,
		mux:       mux,
		consumer:  consumer,
		scheduler: scheduler,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	s.scheduler.Start()
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.scheduler.Stop()
	s.server.Shutdown()
	return nil
}

func reportTaskError(ctx context.Context, task *asynq.Task, err error) {
	if task == nil {
		return
	}
	retried, _ := asynq.GetRetryCount(ctx)
	logger.Warnw("worker_task_failed",
		"task_type", task.Type(),
		"retried", retried,
		"skip_retry", errors.Is(err, asynq.SkipRetry),
		"error", err,
	)
}
