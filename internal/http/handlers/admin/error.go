package admin

import (
	"strings"

	handlershared "github.com/dujiao-next/referral-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/referral-ledger/internal/http/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondServiceError(c *gin.Context, err error) {
	handlershared.RespondServiceError(c, err)
}

func pathParam(c *gin.Context, key string) (string, bool) {
	value := strings.TrimSpace(c.Param(key))
	if value == "" || len(value) > 64 {
		respondError(c, response.CodeBadRequest, key+" is invalid", nil)
		return "", false
	}
	return value, true
}
