package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const namespace = "referral_ledger"

type metrics struct {
	distributeTotal   *prometheus.CounterVec
	distributeLatency *prometheus.HistogramVec
	allocatedAmount   *prometheus.CounterVec
	redirectTotal     *prometheus.CounterVec

	fundBalance      *prometheus.GaugeVec
	withdrawAttempts *prometheus.CounterVec

	reconcileRuns        *prometheus.CounterVec
	reconcileCorrections *prometheus.CounterVec

	placementTotal *prometheus.CounterVec

	httpRequests *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		distributeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_distribute_total",
			Help:      "Total number of commission distributions by result.",
		}, []string{"result"}),
		distributeLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commission_distribute_seconds",
			Help:      "Latency distribution for commission distribution.",
			Buckets: []float64{
				0.001, 0.005,
				0.01, 0.05,
				0.1, 0.5,
				1, 2, 5,
			},
		}, []string{"result"}),
		allocatedAmount: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_allocated_amount_total",
			Help:      "Total amount allocated per bucket (trust, direct, tree, development, remainder).",
		}, []string{"bucket"}),
		redirectTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_redirect_total",
			Help:      "Total number of commission shares redirected to the trust fund by reason.",
		}, []string{"reason"}),
		fundBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fund_balance",
			Help:      "Last observed balance of each pooled fund.",
		}, []string{"fund_type"}),
		withdrawAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fund_withdraw_attempts_total",
			Help:      "Total number of fund withdrawal attempts by result.",
		}, []string{"fund_type", "result"}),
		reconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Total number of reconciliation runs by scope.",
		}, []string{"scope"}),
		reconcileCorrections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_corrections_total",
			Help:      "Total number of balance corrections applied by reconciliation.",
		}, []string{"scope", "field"}),
		placementTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tree_placement_total",
			Help:      "Total number of tree placements by result.",
		}, []string{"result"}),
		httpRequests: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

// Init 预先注册全部指标
func Init() {
	_ = getMetrics()
}

// ObserveDistribute 记录一次佣金分配结果
func ObserveDistribute(result string, seconds float64) {
	m := getMetrics()
	m.distributeTotal.WithLabelValues(result).Inc()
	m.distributeLatency.WithLabelValues(result).Observe(seconds)
}

// AddAllocated 累加某一分配桶的金额
func AddAllocated(bucket string, amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}
	getMetrics().allocatedAmount.WithLabelValues(bucket).Add(amount.InexactFloat64())
}

// IncRedirect 记录一次转入信托基金
func IncRedirect(reason string) {
	getMetrics().redirectTotal.WithLabelValues(reason).Inc()
}

// SetFundBalance 更新资金池余额
func SetFundBalance(fundType string, balance decimal.Decimal) {
	getMetrics().fundBalance.WithLabelValues(fundType).Set(balance.InexactFloat64())
}

// IncWithdrawAttempt 记录一次提现尝试
func IncWithdrawAttempt(fundType, result string) {
	getMetrics().withdrawAttempts.WithLabelValues(fundType, result).Inc()
}

// IncReconcileRun 记录一次对账
func IncReconcileRun(scope string) {
	getMetrics().reconcileRuns.WithLabelValues(scope).Inc()
}

// IncReconcileCorrection 记录一次对账修正
func IncReconcileCorrection(scope, field string) {
	getMetrics().reconcileCorrections.WithLabelValues(scope, field).Inc()
}

// IncPlacement 记录一次树节点放置结果
func IncPlacement(result string) {
	getMetrics().placementTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest 记录 HTTP 请求耗时
func ObserveHTTPRequest(method, route, status string, seconds float64) {
	getMetrics().httpRequests.WithLabelValues(method, route, status).Observe(seconds)
}
