package models

import "time"

// EarningTransaction 用户收益流水（只追加）
type EarningTransaction struct {
	ID           uint      `gorm:"primarykey" json:"id"`                                    // 主键
	UserID       string    `gorm:"type:varchar(64);not null;index" json:"user_id"`          // 用户ID
	OrderID      *string   `gorm:"type:varchar(64);index" json:"order_id,omitempty"`        // 关联订单
	Type         string    `gorm:"type:varchar(32);not null;index" json:"type"`             // 流水类型
	Amount       Money     `gorm:"type:decimal(20,2);not null" json:"amount"`               // 变动金额（带符号）
	WalletBefore Money     `gorm:"type:decimal(20,2);not null" json:"wallet_before"`        // 变动前钱包余额
	WalletAfter  Money     `gorm:"type:decimal(20,2);not null" json:"wallet_after"`         // 变动后钱包余额
	Reference    string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"reference"` // 幂等引用
	Remark       string    `gorm:"type:varchar(255)" json:"remark"`                         // 备注
	CreatedAt    time.Time `gorm:"index" json:"created_at"`                                 // 创建时间
}

// TableName 指定表名
func (EarningTransaction) TableName() string {
	return "earning_transactions"
}
