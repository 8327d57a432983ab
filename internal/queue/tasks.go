package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
)

const (
	// TaskCommissionDistribute 订单完成佣金分配任务
	TaskCommissionDistribute = constants.TaskCommissionDistribute
	// TaskLedgerReconcile 账本对账任务
	TaskLedgerReconcile = constants.TaskLedgerReconcile
)

var payloadValidator = validator.New(validator.WithRequiredStructEnabled())

// OrderCompletedPayload 订单完成事件载荷
type OrderCompletedPayload struct {
	OrderID     string       `json:"order_id" validate:"required,max=64"`
	PurchaserID string       `json:"purchaser_id" validate:"required,max=64"`
	OrderAmount models.Money `json:"order_amount"`
}

// Validate 校验载荷，金额必须为正
func (p OrderCompletedPayload) Validate() error {
	if err := payloadValidator.Struct(p); err != nil {
		return fmt.Errorf("invalid order completed payload: %w", err)
	}
	if p.OrderAmount.Sign() <= 0 {
		return fmt.Errorf("invalid order completed payload: order_amount must be positive")
	}
	return nil
}

// LedgerReconcilePayload 对账任务载荷
type LedgerReconcilePayload struct {
	IncludeUsers bool   `json:"include_users"`
	Trigger      string `json:"trigger" validate:"omitempty,oneof=cron admin cli"`
}

// NewCommissionDistributeTask 创建佣金分配任务
func NewCommissionDistributeTask(payload OrderCompletedPayload) (*asynq.Task, error) {
	payload.OrderID = strings.TrimSpace(payload.OrderID)
	payload.PurchaserID = strings.TrimSpace(payload.PurchaserID)
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCommissionDistribute, body), nil
}

// ParseOrderCompletedPayload 解析并校验佣金分配任务载荷
func ParseOrderCompletedPayload(body []byte) (OrderCompletedPayload, error) {
	var payload OrderCompletedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, fmt.Errorf("decode order completed payload: %w", err)
	}
	payload.OrderID = strings.TrimSpace(payload.OrderID)
	payload.PurchaserID = strings.TrimSpace(payload.PurchaserID)
	return payload, payload.Validate()
}

// NewLedgerReconcileTask 创建对账任务
func NewLedgerReconcileTask(payload LedgerReconcilePayload) (*asynq.Task, error) {
	if err := payloadValidator.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid reconcile payload: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body), nil
}

// ParseLedgerReconcilePayload 解析对账任务载荷，空载荷视为默认值
func ParseLedgerReconcilePayload(body []byte) (LedgerReconcilePayload, error) {
	var payload LedgerReconcilePayload
	if len(body) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, fmt.Errorf("decode reconcile payload: %w", err)
	}
	return payload, nil
}
