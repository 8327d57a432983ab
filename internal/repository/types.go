package repository

import "time"

// UserListFilter 查询用户列表的过滤条件
type UserListFilter struct {
	Page         int
	PageSize     int
	Keyword      string
	Suspended    *bool
	TreeParentID string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

// CommissionListFilter 查询佣金记录列表的过滤条件
type CommissionListFilter struct {
	Page             int
	PageSize         int
	OrderID          string
	PurchaserID      string
	DirectReferrerID string
	Status           string
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
}

// FundTransactionListFilter 查询资金池流水的过滤条件
type FundTransactionListFilter struct {
	Page        int
	PageSize    int
	FundType    string
	Type        string
	OrderID     string
	Keyword     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// EarningTransactionListFilter 查询用户收益流水的过滤条件
type EarningTransactionListFilter struct {
	Page     int
	PageSize int
	UserID   string
	OrderID  string
	Type     string
}

// ReconciliationLogListFilter 查询对账修正记录的过滤条件
type ReconciliationLogListFilter struct {
	Page     int
	PageSize int
	Scope    string
	Subject  string
}

