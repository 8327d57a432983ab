package shared

import (
	"errors"

	"github.com/dujiao-next/referral-ledger/internal/http/response"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// RespondServiceError 按服务层错误分类返回状态码与分类。
func RespondServiceError(c *gin.Context, err error) {
	category := service.ClassifyError(err)
	appErr := response.WrapError(StatusForError(err), err.Error(), err).WithCategory(string(category))
	switch category {
	case service.ErrorCategoryInternal, service.ErrorCategoryTransient:
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"category", appErr.Category,
			"error", err,
		)
	case service.ErrorCategoryConsistency:
		RequestLog(c).Warnw("handler_consistency_error",
			"code", appErr.Code,
			"category", appErr.Category,
			"error", err,
		)
	}
	msg := appErr.Message
	if category == service.ErrorCategoryInternal {
		msg = "internal error"
	}
	response.ErrorWithCategory(c, appErr.Code, msg, appErr.Category)
}

// StatusForError 服务层错误对应的业务状态码
func StatusForError(err error) int {
	switch service.ClassifyError(err) {
	case service.ErrorCategoryNone:
		return response.CodeOK
	case service.ErrorCategoryValidation:
		if errors.Is(err, service.ErrUserExists) {
			return response.CodeConflict
		}
		return response.CodeBadRequest
	case service.ErrorCategoryNotFound:
		if errors.Is(err, service.ErrBrokenTree) {
			return response.CodeUnprocessable
		}
		return response.CodeNotFound
	case service.ErrorCategoryConsistency:
		return response.CodeUnprocessable
	case service.ErrorCategoryInProgress:
		return response.CodeConflict
	case service.ErrorCategoryTransient:
		return response.CodeUnavailable
	default:
		return response.CodeInternal
	}
}
