package admin

import (
	"strings"

	handlershared "github.com/dujiao-next/referral-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/referral-ledger/internal/http/response"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/repository"

	"github.com/gin-gonic/gin"
)

// FundWithdrawRequest 资金池提现请求
type FundWithdrawRequest struct {
	Amount      models.Money `json:"amount"`
	Description string       `json:"description" binding:"max=255"`
}

// ListFunds 资金池列表
func (h *Handler) ListFunds(c *gin.Context) {
	funds, err := h.LedgerService.ListFunds()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, funds)
}

// GetFund 资金池详情
func (h *Handler) GetFund(c *gin.Context) {
	fundType, ok := pathParam(c, "type")
	if !ok {
		return
	}
	fund, err := h.LedgerService.GetFund(fundType)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, fund)
}

// ListFundTransactions 资金池流水
func (h *Handler) ListFundTransactions(c *gin.Context) {
	fundType, ok := pathParam(c, "type")
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	filter := repository.FundTransactionListFilter{
		Page:     page,
		PageSize: pageSize,
		FundType: fundType,
		Type:     strings.TrimSpace(c.Query("txn_type")),
		OrderID:  strings.TrimSpace(c.Query("order_id")),
		Keyword:  strings.TrimSpace(c.Query("keyword")),
	}
	rows, total, err := h.LedgerService.ListTransactions(filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rows, handlershared.BuildPagination(page, pageSize, total))
}

// WithdrawFund 资金池提现（带重试）
func (h *Handler) WithdrawFund(c *gin.Context) {
	fundType, ok := pathParam(c, "type")
	if !ok {
		return
	}
	var req FundWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	result, err := h.LedgerService.Withdraw(c.Request.Context(), fundType, req.Amount, strings.TrimSpace(req.Description))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_fund_withdraw",
		"fund_type", result.FundType,
		"amount", result.Amount.String(),
		"new_balance", result.NewBalance.String(),
		"transaction_id", result.TransactionID,
	)
	response.Success(c, result)
}
