package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/models"
)

const commissionCacheTTL = 24 * time.Hour

func commissionKey(orderID string) string {
	return fmt.Sprintf("commission:order:%s", strings.TrimSpace(orderID))
}

// GetCommission 获取已完成的佣金记录缓存
func GetCommission(ctx context.Context, orderID string) (*models.CommissionTransaction, bool, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, false, nil
	}
	var record models.CommissionTransaction
	hit, err := GetJSON(ctx, commissionKey(orderID), &record)
	if err != nil || !hit {
		return nil, false, err
	}
	return &record, true, nil
}

// SetCommission 缓存佣金记录，仅缓存已完成（不可变）的记录
func SetCommission(ctx context.Context, record *models.CommissionTransaction) error {
	if record == nil || record.Status != constants.CommissionStatusCompleted {
		return nil
	}
	return SetJSON(ctx, commissionKey(record.OrderID), record, commissionCacheTTL)
}
