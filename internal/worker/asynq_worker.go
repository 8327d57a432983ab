package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/provider"
	"github.com/dujiao-next/referral-ledger/internal/queue"
	"github.com/dujiao-next/referral-ledger/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskCommissionDistribute, c.handleCommissionDistribute)
	mux.HandleFunc(queue.TaskLedgerReconcile, c.handleLedgerReconcile)
}

func (c *Consumer) handleCommissionDistribute(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_commission_distribute_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseOrderCompletedPayload(task.Payload())
	if err != nil {
		logger.Warnw("worker_commission_distribute_invalid_payload", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if c.CommissionService == nil {
		logger.Warnw("worker_commission_distribute_skip_service_nil", "order_id", payload.OrderID)
		return nil
	}
	record, err := c.CommissionService.Distribute(ctx, service.DistributeInput{
		OrderID:     payload.OrderID,
		PurchaserID: payload.PurchaserID,
		OrderAmount: payload.OrderAmount,
	})
	if err != nil {
		return classifyDistributeError(payload.OrderID, err)
	}
	logger.Debugw("worker_commission_distribute_done",
		"order_id", payload.OrderID,
		"status", record.Status,
	)
	return nil
}

// classifyDistributeError 校验失败与需人工排查的错误不再重试，其余交给队列退避重试
func classifyDistributeError(orderID string, err error) error {
	switch {
	case service.ClassifyError(err) == service.ErrorCategoryValidation:
		logger.Warnw("worker_commission_distribute_rejected", "order_id", orderID, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case errors.Is(err, service.ErrBrokenTree), errors.Is(err, service.ErrAllocationMismatch):
		logger.Errorw("worker_commission_distribute_needs_attention", "order_id", orderID, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case errors.Is(err, service.ErrCommissionInProgress):
		logger.Debugw("worker_commission_distribute_in_progress", "order_id", orderID)
		return err
	default:
		logger.Warnw("worker_commission_distribute_failed", "order_id", orderID, "error", err)
		return err
	}
}

func (c *Consumer) handleLedgerReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_ledger_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseLedgerReconcilePayload(task.Payload())
	if err != nil {
		logger.Warnw("worker_ledger_reconcile_invalid_payload", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if c.ReconciliationService == nil {
		logger.Warnw("worker_ledger_reconcile_skip_service_nil", "trigger", payload.Trigger)
		return nil
	}
	report, err := c.ReconciliationService.ReconcileScoped(ctx, payload.IncludeUsers)
	if err != nil {
		logger.Warnw("worker_ledger_reconcile_failed", "trigger", payload.Trigger, "error", err)
		return err
	}
	corrected := 0
	for _, result := range report.Funds {
		if result.Corrected {
			corrected++
		}
	}
	logger.Infow("worker_ledger_reconcile_done",
		"trigger", payload.Trigger,
		"funds_corrected", corrected,
		"users_checked", report.Users != nil,
	)
	return nil
}
