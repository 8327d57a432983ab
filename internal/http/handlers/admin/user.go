package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/dujiao-next/referral-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/referral-ledger/internal/http/response"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/repository"
	"github.com/dujiao-next/referral-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// UserSuspensionRequest 停用/恢复用户请求
type UserSuspensionRequest struct {
	Suspended *bool `json:"suspended" binding:"required"`
}

// UserWalletWithdrawRequest 用户钱包出款请求
type UserWalletWithdrawRequest struct {
	Amount models.Money `json:"amount"`
	Remark string       `json:"remark"`
}

// ListUsers 用户列表
func (h *Handler) ListUsers(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	filter := repository.UserListFilter{
		Page:         page,
		PageSize:     pageSize,
		Keyword:      strings.TrimSpace(c.Query("keyword")),
		TreeParentID: strings.TrimSpace(c.Query("tree_parent_id")),
	}
	if raw := strings.TrimSpace(c.Query("suspended")); raw != "" {
		suspended, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, response.CodeBadRequest, "suspended must be a boolean", nil)
			return
		}
		filter.Suspended = &suspended
	}
	rows, total, err := h.UserService.ListUsers(filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rows, handlershared.BuildPagination(page, pageSize, total))
}

// GetUser 用户详情
func (h *Handler) GetUser(c *gin.Context) {
	userID, ok := pathParam(c, "id")
	if !ok {
		return
	}
	user, err := h.UserService.GetUser(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, user)
}

// GetUserTree 用户树节点及其子节点
func (h *Handler) GetUserTree(c *gin.Context) {
	userID, ok := pathParam(c, "id")
	if !ok {
		return
	}
	view, err := h.UserService.GetTree(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, view)
}

// UpdateUserSuspension 停用或恢复用户
func (h *Handler) UpdateUserSuspension(c *gin.Context) {
	userID, ok := pathParam(c, "id")
	if !ok {
		return
	}
	var req UserSuspensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	user, err := h.UserService.SetSuspended(userID, *req.Suspended)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_user_suspension_updated", "user_id", user.ID, "suspended", user.Suspended)
	response.Success(c, user)
}

// WithdrawUserWallet 用户钱包出款
func (h *Handler) WithdrawUserWallet(c *gin.Context) {
	userID, ok := pathParam(c, "id")
	if !ok {
		return
	}
	var req UserWalletWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	user, txn, err := h.WalletService.Withdraw(service.WalletWithdrawInput{
		UserID: userID,
		Amount: req.Amount,
		Remark: req.Remark,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"user":        user,
		"transaction": txn,
	})
}

// ListUserEarnings 用户收益流水
func (h *Handler) ListUserEarnings(c *gin.Context) {
	userID, ok := pathParam(c, "id")
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	rows, total, err := h.WalletService.ListEarnings(repository.EarningTransactionListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   userID,
		OrderID:  strings.TrimSpace(c.Query("order_id")),
		Type:     strings.TrimSpace(c.Query("type")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rows, handlershared.BuildPagination(page, pageSize, total))
}
