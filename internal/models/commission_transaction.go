package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionTransaction 订单佣金分配记录（每个订单唯一）
type CommissionTransaction struct {
	ID                      uint       `gorm:"primarykey" json:"id"`                                                    // 主键
	OrderID                 string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"order_id"`                   // 订单ID（幂等键）
	PurchaserID             string     `gorm:"type:varchar(64);not null;index" json:"purchaser_id"`                     // 购买用户
	OrderAmount             Money      `gorm:"type:decimal(20,2);not null;default:0" json:"order_amount"`               // 订单金额
	TotalCommission         Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_commission"`           // 应分配总额（订单金额 10%）
	DirectReferrerID        *string    `gorm:"type:varchar(64);index" json:"direct_referrer_id,omitempty"`              // 直推人
	DirectCommissionAmount  Money      `gorm:"type:decimal(20,2);not null;default:0" json:"direct_commission_amount"`   // 直推佣金
	DirectRedirected        bool       `gorm:"not null;default:false" json:"direct_redirected"`                         // 直推佣金是否转入信托基金
	DirectRedirectReason    string     `gorm:"type:varchar(64)" json:"direct_redirect_reason,omitempty"`                // 转入原因
	TreePoolAmount          Money      `gorm:"type:decimal(20,2);not null;default:0" json:"tree_pool_amount"`           // 树佣金池
	TrustFundAmount         Money      `gorm:"type:decimal(20,2);not null;default:0" json:"trust_fund_amount"`          // 信托基金基础分配
	RedirectedToTrustAmount Money      `gorm:"type:decimal(20,2);not null;default:0" json:"redirected_to_trust_amount"` // 转入信托基金的佣金合计
	DevTrustFundAmount      Money      `gorm:"type:decimal(20,2);not null;default:0" json:"dev_trust_fund_amount"`      // 发展基金基础分配
	RemainderToDevFund      Money      `gorm:"type:decimal(20,2);not null;default:0" json:"remainder_to_dev_fund"`      // 树佣金池剩余（转入发展基金）
	Status                  string     `gorm:"type:varchar(20);not null;index" json:"status"`                           // 状态
	FailureReason           string     `gorm:"type:varchar(500)" json:"failure_reason,omitempty"`                       // 失败原因
	CompletedAt             *time.Time `gorm:"index" json:"completed_at,omitempty"`                                     // 完成时间
	CreatedAt               time.Time  `gorm:"index" json:"created_at"`                                                 // 创建时间
	UpdatedAt               time.Time  `gorm:"index" json:"updated_at"`                                                 // 更新时间

	TreeCommissions []CommissionTreeEntry `gorm:"foreignKey:CommissionTransactionID" json:"tree_commissions"` // 树佣金明细（按层级排序）
}

// TableName 指定表名
func (CommissionTransaction) TableName() string {
	return "commission_transactions"
}

// TreeCommissionTotal 树佣金合计（含转入信托基金的部分）
func (c *CommissionTransaction) TreeCommissionTotal() Money {
	total := ZeroMoney()
	for _, entry := range c.TreeCommissions {
		total = total.Add(entry.Amount)
	}
	return total
}

// AllocatedTotal 实际分配合计
func (c *CommissionTransaction) AllocatedTotal() Money {
	return SumMoney(
		c.TrustFundAmount,
		c.DirectCommissionAmount,
		c.DevTrustFundAmount,
		c.TreeCommissionTotal(),
		c.RemainderToDevFund,
	)
}

// CommissionTreeEntry 树佣金明细
type CommissionTreeEntry struct {
	ID                      uint            `gorm:"primarykey" json:"id"`                                                                        // 主键
	CommissionTransactionID uint            `gorm:"not null;index:idx_commission_tree_level,unique,priority:1" json:"commission_transaction_id"` // 所属佣金记录
	RecipientID             string          `gorm:"type:varchar(64);not null;index" json:"recipient_id"`                                         // 收款用户
	Level                   int             `gorm:"not null;index:idx_commission_tree_level,unique,priority:2" json:"level"`                     // 树佣金层级（从 1 开始）
	Percentage              decimal.Decimal `gorm:"type:varchar(40);not null" json:"percentage"`                                                 // 百分比
	Amount                  Money           `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`                                         // 金额
	Redirected              bool            `gorm:"not null;default:false" json:"redirected"`                                                    // 是否转入信托基金（收款人停用）
	CreatedAt               time.Time       `json:"created_at"`                                                                                  // 创建时间
}

// TableName 指定表名
func (CommissionTreeEntry) TableName() string {
	return "commission_tree_entries"
}
