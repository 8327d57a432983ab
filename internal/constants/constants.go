package constants

// 基金类型常量
const (
	FundTypeTrust       = "trust"
	FundTypeDevelopment = "development"
)

// FundTypes 全部基金类型（对账按此顺序执行）
var FundTypes = []string{FundTypeTrust, FundTypeDevelopment}

// 基金流水类型常量
const (
	FundTxnTypeOrderAllocation = "order_allocation"
	FundTxnTypeRemainder       = "remainder"
	FundTxnTypeWithdrawal      = "withdrawal"
)

// 佣金记录状态常量
const (
	CommissionStatusPending   = "pending"
	CommissionStatusCompleted = "completed"
	CommissionStatusFailed    = "failed"
)

// 用户收益流水类型常量
const (
	EarningTxnTypeDirectCommission = "direct_commission"
	EarningTxnTypeTreeCommission   = "tree_commission"
	EarningTxnTypeWalletWithdrawal = "wallet_withdrawal"
)

// 直推佣金转入信托基金的原因
const (
	RedirectReasonNoReferrerCode      = "no_referrer_code"
	RedirectReasonReferrerNotFound    = "referrer_not_found"
	RedirectReasonReferrerSuspended   = "referrer_suspended"
	RedirectReasonAncestorSuspended   = "tree_ancestor_suspended"
	RedirectReasonReferrerIsPurchaser = "referrer_is_purchaser"
)

// 对账状态常量
const (
	ReconcileStatusOK        = "ok"
	ReconcileStatusCorrected = "corrected"
	ReconcileStatusNotFound  = "not_found"
)

// 对账范围
const (
	ReconcileScopeFund = "fund"
	ReconcileScopeUser = "user"
)

// 分配比例（百分比）
const (
	CommissionTotalPercent     = "10"
	TrustFundBasePercent       = "3"
	DirectCommissionPercent    = "3"
	TreeCommissionPoolPercent  = "3"
	DevTrustFundBasePercent    = "1"
	TreeCommissionStartPercent = "1.5"
)

// 树结构常量
const (
	TreeMaxChildren     = 5
	TreeRootLevel       = 1
	DefaultMaxTreeDepth = 20
	DefaultMaxTreeLevel = 20
)

// ReferralCodePrefix 推荐码前缀（REF + 6 位数字）
const ReferralCodePrefix = "REF"

// 队列与任务常量
const (
	QueueDefault             = "default"
	QueueCritical            = "critical"
	TaskCommissionDistribute = "commission:distribute"
	TaskLedgerReconcile      = "ledger:reconcile"
)
