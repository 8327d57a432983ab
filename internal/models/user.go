package models

import "time"

// User 用户及其推荐树节点
type User struct {
	ID                     string    `gorm:"primarykey;type:varchar(64)" json:"id"`                                                       // 主键（外部不透明标识）
	ReferralCode           string    `gorm:"type:varchar(16);not null;uniqueIndex" json:"referral_code"`                                  // 推荐码 REF######
	ReferredByCode         *string   `gorm:"type:varchar(16);index" json:"referred_by_code,omitempty"`                                    // 注册时使用的推荐码（直推关系）
	TreeParentID           *string   `gorm:"type:varchar(64);index:idx_user_tree_slot,unique,priority:1" json:"tree_parent_id,omitempty"` // 树父节点
	TreeLevel              int       `gorm:"not null;default:1" json:"tree_level"`                                                        // 树层级（根为 1）
	TreePosition           int       `gorm:"not null;default:0;index:idx_user_tree_slot,unique,priority:2" json:"tree_position"`          // 兄弟节点中的位置（从 0 开始）
	TreeChildCount         int       `gorm:"not null;default:0" json:"tree_child_count"`                                                  // 已占用子节点槽位
	Wallet                 Money     `gorm:"type:decimal(20,2);not null;default:0" json:"wallet"`                                         // 钱包余额
	DirectCommissionEarned Money     `gorm:"type:decimal(20,2);not null;default:0" json:"direct_commission_earned"`                       // 累计直推佣金
	TreeCommissionEarned   Money     `gorm:"type:decimal(20,2);not null;default:0" json:"tree_commission_earned"`                         // 累计树佣金
	Suspended              bool      `gorm:"not null;default:false;index" json:"suspended"`                                               // 是否停用
	CreatedAt              time.Time `gorm:"index" json:"created_at"`                                                                     // 创建时间
	UpdatedAt              time.Time `gorm:"index" json:"updated_at"`                                                                     // 更新时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// IsTreeRoot 是否为树根
func (u *User) IsTreeRoot() bool {
	return u != nil && u.TreeParentID == nil
}
