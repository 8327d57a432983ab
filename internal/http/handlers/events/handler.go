package events

import (
	handlershared "github.com/dujiao-next/referral-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/referral-ledger/internal/provider"

	"github.com/gin-gonic/gin"
)

// Handler 上游业务事件入口（订单完成、用户注册）
type Handler struct {
	*provider.Container
}

// New 创建事件处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

func respondServiceError(c *gin.Context, err error) {
	handlershared.RespondServiceError(c, err)
}
