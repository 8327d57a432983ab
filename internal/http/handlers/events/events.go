package events

import (
	"github.com/dujiao-next/referral-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/referral-ledger/internal/http/response"
	"github.com/dujiao-next/referral-ledger/internal/queue"
	"github.com/dujiao-next/referral-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// SignupRequest 用户注册事件
type SignupRequest struct {
	UserID       string `json:"user_id"`
	ReferrerID   string `json:"referrer_id"`
	ReferralCode string `json:"referral_code"`
}

// OrderCompleted 订单完成事件：异步模式下投递队列，否则同步分配佣金
func (h *Handler) OrderCompleted(c *gin.Context) {
	var payload queue.OrderCompletedPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	if h.Config.Commission.Async && h.QueueClient.Enabled() {
		queued, err := h.QueueClient.EnqueueCommissionDistribute(payload)
		if err != nil {
			if payload.Validate() != nil {
				shared.RespondError(c, response.CodeBadRequest, err.Error(), nil)
				return
			}
			shared.RespondError(c, response.CodeUnavailable, "enqueue commission failed", err)
			return
		}
		shared.RequestLog(c).Infow("event_order_completed_enqueued",
			"order_id", payload.OrderID,
			"queued", queued,
		)
		response.Success(c, gin.H{
			"order_id": payload.OrderID,
			"queued":   queued,
			"task_id":  queue.CommissionTaskID(payload.OrderID),
		})
		return
	}

	record, err := h.CommissionService.Distribute(c.Request.Context(), service.DistributeInput{
		OrderID:     payload.OrderID,
		PurchaserID: payload.PurchaserID,
		OrderAmount: payload.OrderAmount,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, record)
}

// Signup 用户注册事件：创建用户并放置到推荐人所在的树
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	user, err := h.UserService.Register(service.RegisterInput{
		UserID:       req.UserID,
		ReferrerID:   req.ReferrerID,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, user)
}
