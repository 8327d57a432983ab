package admin

import (
	"strings"

	handlershared "github.com/dujiao-next/referral-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/referral-ledger/internal/http/response"
	"github.com/dujiao-next/referral-ledger/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListCommissions 佣金记录列表
func (h *Handler) ListCommissions(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	filter := repository.CommissionListFilter{
		Page:             page,
		PageSize:         pageSize,
		OrderID:          strings.TrimSpace(c.Query("order_id")),
		PurchaserID:      strings.TrimSpace(c.Query("purchaser_id")),
		DirectReferrerID: strings.TrimSpace(c.Query("direct_referrer_id")),
		Status:           strings.TrimSpace(c.Query("status")),
	}
	rows, total, err := h.CommissionService.List(filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rows, handlershared.BuildPagination(page, pageSize, total))
}

// GetCommission 按订单查询佣金记录（含树佣金明细）
func (h *Handler) GetCommission(c *gin.Context) {
	orderID, ok := pathParam(c, "order_id")
	if !ok {
		return
	}
	record, err := h.CommissionService.GetByOrderID(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, record)
}
