package models

import (
	"time"
)

// TrustFund 资金池（按类型唯一）
type TrustFund struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                   // 主键
	FundType  string    `gorm:"type:varchar(20);not null;uniqueIndex" json:"fund_type"` // 基金类型
	Balance   Money     `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`   // 余额（等于流水合计）
	CreatedAt time.Time `gorm:"index" json:"created_at"`                                // 创建时间
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`                                // 更新时间
}

// TableName 指定表名
func (TrustFund) TableName() string {
	return "trust_funds"
}

// TrustFundTransaction 资金池流水（只追加）
type TrustFundTransaction struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                        // 主键
	TransactionNo string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"transaction_no"` // 流水号
	FundID        uint      `gorm:"not null;index" json:"fund_id"`                               // 资金池ID
	FundType      string    `gorm:"type:varchar(20);not null;index" json:"fund_type"`            // 基金类型
	OrderID       *string   `gorm:"type:varchar(64);index" json:"order_id,omitempty"`            // 关联订单
	Type          string    `gorm:"type:varchar(32);not null;index" json:"type"`                 // 流水类型
	Amount        Money     `gorm:"type:decimal(20,2);not null" json:"amount"`                   // 变动金额（带符号）
	BalanceBefore Money     `gorm:"type:decimal(20,2);not null" json:"balance_before"`           // 变动前余额
	BalanceAfter  Money     `gorm:"type:decimal(20,2);not null" json:"balance_after"`            // 变动后余额
	Description   string    `gorm:"type:varchar(500)" json:"description"`                        // 说明
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                                     // 创建时间
}

// TableName 指定表名
func (TrustFundTransaction) TableName() string {
	return "trust_fund_transactions"
}
