package service

import (
	"context"
	"errors"
	"fmt"
)

// 校验类错误
var (
	ErrInvalidOrderID     = errors.New("invalid order id")
	ErrInvalidPurchaserID = errors.New("invalid purchaser id")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidFundType    = errors.New("invalid fund type")
	ErrInvalidPayload     = errors.New("invalid payload")
)

// 不存在类错误
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrReferrerNotFound   = errors.New("referrer not found")
	ErrBrokenTree         = errors.New("broken tree: parent chain does not reach a root")
	ErrFundNotFound       = errors.New("fund not found")
	ErrCommissionNotFound = errors.New("commission transaction not found")
)

// 一致性类错误
var (
	ErrAllocationMismatch  = errors.New("commission allocation does not match total")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTreeFull            = errors.New("no open tree slot within depth limit")
	ErrReferralCodeExhaust = errors.New("referral code generation exhausted")
)

// 并发类错误
var (
	ErrCommissionInProgress = errors.New("commission distribution in progress")
	ErrPlacementConflict    = errors.New("tree placement conflict")
)

// ErrStorageUnavailable 存储层暂时不可用（可重试）
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrorCategory 错误分类，管理端据此区分可重试与需人工排查
type ErrorCategory string

// 错误分类常量
const (
	ErrorCategoryNone        ErrorCategory = ""
	ErrorCategoryValidation  ErrorCategory = "validation"
	ErrorCategoryNotFound    ErrorCategory = "not_found"
	ErrorCategoryConsistency ErrorCategory = "consistency"
	ErrorCategoryIdempotent  ErrorCategory = "idempotent"
	ErrorCategoryInProgress  ErrorCategory = "in_progress"
	ErrorCategoryTransient   ErrorCategory = "transient"
	ErrorCategoryInternal    ErrorCategory = "internal"
)

// ClassifyError 按错误分类归类
func ClassifyError(err error) ErrorCategory {
	switch {
	case err == nil:
		return ErrorCategoryNone
	case errors.Is(err, ErrInvalidOrderID),
		errors.Is(err, ErrInvalidPurchaserID),
		errors.Is(err, ErrInvalidUserID),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidFundType),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrUserExists):
		return ErrorCategoryValidation
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrReferrerNotFound),
		errors.Is(err, ErrBrokenTree),
		errors.Is(err, ErrFundNotFound),
		errors.Is(err, ErrCommissionNotFound):
		return ErrorCategoryNotFound
	case errors.Is(err, ErrAllocationMismatch),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrTreeFull),
		errors.Is(err, ErrReferralCodeExhaust):
		return ErrorCategoryConsistency
	case errors.Is(err, ErrCommissionInProgress),
		errors.Is(err, ErrPlacementConflict):
		return ErrorCategoryInProgress
	case errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryTransient
	default:
		return ErrorCategoryInternal
	}
}

// IsRetryable 是否建议稍后重试
func IsRetryable(err error) bool {
	switch ClassifyError(err) {
	case ErrorCategoryTransient, ErrorCategoryInProgress:
		return true
	default:
		return false
	}
}

// wrapStorage 将存储层错误包装为可重试的暂时性错误
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
}
