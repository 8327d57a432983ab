package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/dujiao-next/referral-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/referral-ledger/internal/http/response"
	"github.com/dujiao-next/referral-ledger/internal/queue"
	"github.com/dujiao-next/referral-ledger/internal/repository"

	"github.com/gin-gonic/gin"
)

// RunReconcile 对账资金池（按配置包含用户收益）；async=true 且队列可用时转为异步任务
func (h *Handler) RunReconcile(c *gin.Context) {
	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	if async && h.QueueClient.Enabled() {
		queued, err := h.QueueClient.EnqueueLedgerReconcile(queue.LedgerReconcilePayload{
			IncludeUsers: h.Config.Reconcile.IncludeUsers,
			Trigger:      "admin",
		})
		if err != nil {
			respondError(c, response.CodeInternal, "enqueue reconcile failed", err)
			return
		}
		response.Success(c, gin.H{"queued": queued})
		return
	}
	report, err := h.ReconciliationService.Reconcile(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, report)
}

// RunReconcileUsers 仅对账用户收益
func (h *Handler) RunReconcileUsers(c *gin.Context) {
	report, err := h.ReconciliationService.ReconcileUsers(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, report)
}

// ListReconciliationLogs 对账修正记录
func (h *Handler) ListReconciliationLogs(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	rows, total, err := h.ReconciliationService.ListLogs(repository.ReconciliationLogListFilter{
		Page:     page,
		PageSize: pageSize,
		Scope:    strings.TrimSpace(c.Query("scope")),
		Subject:  strings.TrimSpace(c.Query("subject")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rows, handlershared.BuildPagination(page, pageSize, total))
}
