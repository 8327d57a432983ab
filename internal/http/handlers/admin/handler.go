package admin

import "github.com/dujiao-next/referral-ledger/internal/provider"

// Handler 后台管理接口处理器入口
// 说明：该处理器仅用于运营管理 API（资金池、佣金记录、用户树、对账）。
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
