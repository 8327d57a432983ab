package models

import "time"

// ReconciliationLog 对账修正记录
type ReconciliationLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`                           // 主键
	Scope     string    `gorm:"type:varchar(20);not null;index" json:"scope"`   // 范围 fund/user
	Subject   string    `gorm:"type:varchar(64);not null;index" json:"subject"` // 基金类型或用户ID
	Field     string    `gorm:"type:varchar(64);not null" json:"field"`         // 修正字段
	OldValue  Money     `gorm:"type:decimal(20,2);not null" json:"old_value"`   // 修正前
	NewValue  Money     `gorm:"type:decimal(20,2);not null" json:"new_value"`   // 修正后
	CreatedAt time.Time `gorm:"index" json:"created_at"`                        // 创建时间
}

// TableName 指定表名
func (ReconciliationLog) TableName() string {
	return "reconciliation_logs"
}
