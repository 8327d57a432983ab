package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dujiao-next/referral-ledger/internal/cache"
	"github.com/dujiao-next/referral-ledger/internal/constants"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/metrics"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	hundred                 = decimal.NewFromInt(100)
	commissionTotalRate     = decimal.RequireFromString(constants.CommissionTotalPercent).Div(hundred)
	trustFundBaseRate       = decimal.RequireFromString(constants.TrustFundBasePercent).Div(hundred)
	directCommissionRate    = decimal.RequireFromString(constants.DirectCommissionPercent).Div(hundred)
	treeCommissionPoolRate  = decimal.RequireFromString(constants.TreeCommissionPoolPercent).Div(hundred)
	devFundBaseRate         = decimal.RequireFromString(constants.DevTrustFundBasePercent).Div(hundred)
	treeCommissionStartRate = decimal.RequireFromString(constants.TreeCommissionStartPercent)
	decimalHalf             = decimal.RequireFromString("0.5")
	maxRoundingDrift        = decimal.New(2, -2)
)

// commissionPendingStaleAfter pending 记录超过该时长未更新即视为遗留
const commissionPendingStaleAfter = 10 * time.Minute

// errOrderAlreadyClaimed 订单已存在佣金记录（唯一约束冲突）
var errOrderAlreadyClaimed = errors.New("commission order already claimed")

// CommissionOptions 佣金分配配置
type CommissionOptions struct {
	MaxTreeLevels int
	Tolerance     decimal.Decimal
}

// CommissionService 订单佣金分配服务
type CommissionService struct {
	commissionRepo repository.CommissionRepository
	userRepo       repository.UserRepository
	earningRepo    repository.EarningRepository
	ledger         *LedgerService
	options        CommissionOptions
}

// DistributeInput 订单完成事件
type DistributeInput struct {
	OrderID     string       `json:"order_id"`
	PurchaserID string       `json:"purchaser_id"`
	OrderAmount models.Money `json:"order_amount"`
}

// treeShare 树佣金计划中的单层份额
type treeShare struct {
	recipient  *models.User
	level      int
	percentage decimal.Decimal
	amount     models.Money
	redirected bool
}

// allocationPlan 一笔订单的完整分配计划
type allocationPlan struct {
	orderAmount      models.Money
	total            models.Money
	trustBase        models.Money
	direct           models.Money
	directReferrer   *models.User
	directRedirected bool
	directReason     string
	treePool         models.Money
	tree             []treeShare
	devBase          models.Money
	remainder        models.Money
}

// NewCommissionService 创建佣金分配服务
func NewCommissionService(
	commissionRepo repository.CommissionRepository,
	userRepo repository.UserRepository,
	earningRepo repository.EarningRepository,
	ledger *LedgerService,
	options CommissionOptions,
) *CommissionService {
	if options.MaxTreeLevels <= 0 {
		options.MaxTreeLevels = constants.DefaultMaxTreeLevel
	}
	if options.Tolerance.Sign() <= 0 {
		options.Tolerance = models.MoneyTolerance
	}
	return &CommissionService{
		commissionRepo: commissionRepo,
		userRepo:       userRepo,
		earningRepo:    earningRepo,
		ledger:         ledger,
		options:        options,
	}
}

// Distribute 为已完成订单分配 10% 佣金；同一订单重复调用返回已完成的记录
func (s *CommissionService) Distribute(ctx context.Context, input DistributeInput) (*models.CommissionTransaction, error) {
	startedAt := time.Now()
	record, result, err := s.distribute(ctx, input)
	metrics.ObserveDistribute(result, time.Since(startedAt).Seconds())
	return record, err
}

func (s *CommissionService) distribute(ctx context.Context, input DistributeInput) (*models.CommissionTransaction, string, error) {
	input.OrderID = strings.TrimSpace(input.OrderID)
	input.PurchaserID = strings.TrimSpace(input.PurchaserID)
	if input.OrderID == "" || len(input.OrderID) > 64 {
		return nil, "invalid", ErrInvalidOrderID
	}
	if input.PurchaserID == "" || len(input.PurchaserID) > 64 {
		return nil, "invalid", ErrInvalidPurchaserID
	}
	input.OrderAmount = models.NewMoneyFromDecimal(input.OrderAmount.Decimal)
	if input.OrderAmount.Sign() <= 0 {
		return nil, "invalid", ErrInvalidAmount
	}

	existing, err := s.commissionRepo.GetByOrderID(input.OrderID)
	if err != nil {
		return nil, "error", wrapStorage("load commission", err)
	}
	if existing != nil && existing.Status == constants.CommissionStatusCompleted {
		logger.Debugw("commission_distribute_duplicate", "order_id", input.OrderID)
		return existing, "duplicate", nil
	}
	if existing != nil && existing.Status == constants.CommissionStatusPending {
		if time.Since(existing.UpdatedAt) < commissionPendingStaleAfter {
			return nil, "in_progress", ErrCommissionInProgress
		}
		// 已提交的 pending 只可能是中断遗留，先转为 failed 再走失败重试
		if _, err := s.commissionRepo.MarkFailed(input.OrderID, "stale pending record"); err != nil {
			return nil, "error", wrapStorage("expire stale commission", err)
		}
		logger.Warnw("commission_distribute_stale_pending", "order_id", input.OrderID, "updated_at", existing.UpdatedAt)
		existing.Status = constants.CommissionStatusFailed
		existing.FailureReason = "stale pending record"
	}

	purchaser, err := s.userRepo.GetByID(input.PurchaserID)
	if err != nil {
		return nil, "error", wrapStorage("load purchaser", err)
	}
	if purchaser == nil {
		return nil, "not_found", ErrUserNotFound
	}

	var completed *models.CommissionTransaction
	err = s.commissionRepo.Transaction(func(tx *gorm.DB) error {
		record, err := s.claimRecordTx(tx, input, existing)
		if err != nil {
			return err
		}
		if err := s.allocateTx(tx, record, purchaser); err != nil {
			return err
		}
		completed = record
		return nil
	})
	if err == nil {
		s.afterCompleted(ctx, completed)
		return completed, "completed", nil
	}

	if errors.Is(err, errOrderAlreadyClaimed) {
		return s.resolveClaimed(input.OrderID)
	}

	s.persistFailure(input, err)
	result := "failed"
	if errors.Is(err, ErrAllocationMismatch) {
		result = "mismatch"
	}
	return nil, result, err
}

// claimRecordTx 在事务内占有订单：新订单插入 pending 记录，失败记录条件更新为 pending
func (s *CommissionService) claimRecordTx(tx *gorm.DB, input DistributeInput, existing *models.CommissionTransaction) (*models.CommissionTransaction, error) {
	repo := s.commissionRepo.WithTx(tx)
	if existing != nil && existing.Status == constants.CommissionStatusFailed {
		reclaimed, err := repo.ReclaimFailed(input.OrderID)
		if err != nil {
			return nil, wrapStorage("reclaim failed commission", err)
		}
		if !reclaimed {
			return nil, errOrderAlreadyClaimed
		}
		logger.Infow("commission_distribute_retry_failed_record",
			"order_id", input.OrderID,
			"previous_failure", existing.FailureReason,
		)
		existing.Status = constants.CommissionStatusPending
		existing.PurchaserID = input.PurchaserID
		existing.OrderAmount = input.OrderAmount
		existing.FailureReason = ""
		existing.TreeCommissions = nil
		return existing, nil
	}

	record := &models.CommissionTransaction{
		OrderID:     input.OrderID,
		PurchaserID: input.PurchaserID,
		OrderAmount: input.OrderAmount,
		Status:      constants.CommissionStatusPending,
	}
	err := tx.Transaction(func(sp *gorm.DB) error {
		return repo.WithTx(sp).Create(record)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errOrderAlreadyClaimed
		}
		return nil, wrapStorage("create commission", err)
	}
	return record, nil
}

// resolveClaimed 唯一约束冲突后按已存在记录的状态返回
func (s *CommissionService) resolveClaimed(orderID string) (*models.CommissionTransaction, string, error) {
	record, err := s.commissionRepo.GetByOrderID(orderID)
	if err != nil {
		return nil, "error", wrapStorage("load commission", err)
	}
	if record == nil {
		return nil, "in_progress", ErrCommissionInProgress
	}
	switch record.Status {
	case constants.CommissionStatusCompleted:
		logger.Infow("commission_distribute_duplicate_claim", "order_id", orderID)
		return record, "duplicate", nil
	default:
		return nil, "in_progress", ErrCommissionInProgress
	}
}

// allocateTx 计算并落账全部分配，最后执行闭合校验
func (s *CommissionService) allocateTx(tx *gorm.DB, record *models.CommissionTransaction, purchaser *models.User) error {
	userRepo := s.userRepo.WithTx(tx)

	directReferrer, directReason, err := s.resolveDirectReferrer(userRepo, purchaser)
	if err != nil {
		return err
	}
	ancestors, err := s.collectTreeAncestors(userRepo, purchaser, directReferrer)
	if err != nil {
		return err
	}

	// 统一按 ID 升序加锁，并在锁内重新确认停用状态
	lockIDs := make([]string, 0, len(ancestors)+1)
	if directReferrer != nil {
		lockIDs = append(lockIDs, directReferrer.ID)
	}
	for _, ancestor := range ancestors {
		lockIDs = append(lockIDs, ancestor.ID)
	}
	locked, err := userRepo.ListByIDsForUpdate(uniqueSortedIDs(lockIDs))
	if err != nil {
		return wrapStorage("lock recipients", err)
	}
	lockedByID := make(map[string]*models.User, len(locked))
	for i := range locked {
		lockedByID[locked[i].ID] = &locked[i]
	}
	if directReferrer != nil {
		fresh, ok := lockedByID[directReferrer.ID]
		if !ok {
			directReferrer, directReason = nil, constants.RedirectReasonReferrerNotFound
		} else {
			directReferrer = fresh
		}
	}
	for i, ancestor := range ancestors {
		fresh, ok := lockedByID[ancestor.ID]
		if !ok {
			return ErrBrokenTree
		}
		ancestors[i] = *fresh
	}

	plan := buildAllocationPlan(record.OrderAmount, directReferrer, directReason, ancestors, s.options.MaxTreeLevels)
	if err := s.verifyPlan(record.OrderID, plan); err != nil {
		return err
	}
	applied, err := s.applyPlanTx(tx, record, plan)
	if err != nil {
		return err
	}
	if !applied.WithinTolerance(plan.total, s.options.Tolerance) {
		logAllocationMismatch(record.OrderID, plan, applied)
		return ErrAllocationMismatch
	}

	record.TotalCommission = plan.total
	record.DirectCommissionAmount = plan.direct
	record.DirectRedirected = plan.directRedirected
	record.DirectRedirectReason = plan.directReason
	record.TreePoolAmount = plan.treePool
	record.TrustFundAmount = plan.trustBase
	record.RedirectedToTrustAmount = plan.redirectedToTrust()
	record.DevTrustFundAmount = plan.devBase
	record.RemainderToDevFund = plan.remainder
	if plan.directReferrer != nil {
		referrerID := plan.directReferrer.ID
		record.DirectReferrerID = &referrerID
	}

	entries := make([]models.CommissionTreeEntry, 0, len(plan.tree))
	for _, share := range plan.tree {
		entries = append(entries, models.CommissionTreeEntry{
			CommissionTransactionID: record.ID,
			RecipientID:             share.recipient.ID,
			Level:                   share.level,
			Percentage:              share.percentage,
			Amount:                  share.amount,
			Redirected:              share.redirected,
		})
	}
	commissionRepo := s.commissionRepo.WithTx(tx)
	if err := commissionRepo.CreateTreeEntries(entries); err != nil {
		return wrapStorage("create tree entries", err)
	}
	record.TreeCommissions = entries

	if !record.AllocatedTotal().WithinTolerance(plan.total, s.options.Tolerance) {
		logAllocationMismatch(record.OrderID, plan, record.AllocatedTotal())
		return ErrAllocationMismatch
	}

	ok, err := commissionRepo.MarkCompleted(record)
	if err != nil {
		return wrapStorage("complete commission", err)
	}
	if !ok {
		return ErrCommissionInProgress
	}
	return nil
}

// resolveDirectReferrer 按购买人的推荐码查找直推人，无法支付时返回原因
func (s *CommissionService) resolveDirectReferrer(repo repository.UserRepository, purchaser *models.User) (*models.User, string, error) {
	if purchaser.ReferredByCode == nil || strings.TrimSpace(*purchaser.ReferredByCode) == "" {
		return nil, constants.RedirectReasonNoReferrerCode, nil
	}
	referrer, err := repo.GetByReferralCode(*purchaser.ReferredByCode)
	if err != nil {
		return nil, "", wrapStorage("load direct referrer", err)
	}
	if referrer == nil {
		return nil, constants.RedirectReasonReferrerNotFound, nil
	}
	if referrer.ID == purchaser.ID {
		return nil, constants.RedirectReasonReferrerIsPurchaser, nil
	}
	return referrer, "", nil
}

// collectTreeAncestors 沿树父节点向上收集候选收款人（跳过直推人，不占用层级）
func (s *CommissionService) collectTreeAncestors(repo repository.UserRepository, purchaser *models.User, directReferrer *models.User) ([]models.User, error) {
	ancestors := make([]models.User, 0, s.options.MaxTreeLevels)
	visited := map[string]struct{}{purchaser.ID: {}}
	current := purchaser
	for current.TreeParentID != nil && len(ancestors) < s.options.MaxTreeLevels {
		if len(visited) > maxAncestorWalk {
			return nil, ErrBrokenTree
		}
		parent, err := repo.GetByID(*current.TreeParentID)
		if err != nil {
			return nil, wrapStorage("load tree ancestor", err)
		}
		if parent == nil {
			return nil, ErrBrokenTree
		}
		if _, seen := visited[parent.ID]; seen {
			return nil, ErrBrokenTree
		}
		visited[parent.ID] = struct{}{}
		if directReferrer == nil || parent.ID != directReferrer.ID {
			ancestors = append(ancestors, *parent)
		}
		current = parent
	}
	return ancestors, nil
}

// buildAllocationPlan 计算分配：信托 3%、直推 3%、树佣金池 3%（1.5% 起逐级减半）、发展基金 1% 加池剩余
func buildAllocationPlan(orderAmount models.Money, directReferrer *models.User, directReason string, ancestors []models.User, maxLevels int) *allocationPlan {
	amount := orderAmount.Decimal
	plan := &allocationPlan{
		orderAmount: orderAmount,
		total:       models.NewMoneyFromDecimal(amount.Mul(commissionTotalRate)),
		trustBase:   models.NewMoneyFromDecimal(amount.Mul(trustFundBaseRate)),
		direct:      models.NewMoneyFromDecimal(amount.Mul(directCommissionRate)),
		devBase:     models.NewMoneyFromDecimal(amount.Mul(devFundBaseRate)),
	}
	// 各项按分四舍五入；舍入差（至多 ±0.02）只由树佣金池吸收，池剩余最终仍进入发展基金
	plan.treePool = plan.total.Sub(plan.trustBase).Sub(plan.direct).Sub(plan.devBase)

	switch {
	case directReferrer == nil:
		plan.directRedirected = true
		plan.directReason = directReason
	case directReferrer.Suspended:
		plan.directReferrer = directReferrer
		plan.directRedirected = true
		plan.directReason = constants.RedirectReasonReferrerSuspended
	default:
		plan.directReferrer = directReferrer
	}

	remaining := plan.treePool
	percentage := treeCommissionStartRate
	for i := range ancestors {
		level := i + 1
		if level > maxLevels || remaining.LessThan(models.MustMoney("0.01")) {
			break
		}
		share := floorCents(amount.Mul(percentage).Shift(-2))
		if share.GreaterThan(remaining) {
			share = remaining
		}
		if share.IsZero() {
			break
		}
		recipient := ancestors[i]
		plan.tree = append(plan.tree, treeShare{
			recipient:  &recipient,
			level:      level,
			percentage: percentage,
			amount:     share,
			redirected: recipient.Suspended,
		})
		remaining = remaining.Sub(share)
		percentage = percentage.Mul(decimalHalf)
	}
	plan.remainder = remaining
	return plan
}

// redirectedToTrust 转入信托基金的佣金合计（直推 + 停用的树节点）
func (p *allocationPlan) redirectedToTrust() models.Money {
	total := models.ZeroMoney()
	if p.directRedirected {
		total = total.Add(p.direct)
	}
	for _, share := range p.tree {
		if share.redirected {
			total = total.Add(share.amount)
		}
	}
	return total
}

func (p *allocationPlan) treeTotal() models.Money {
	total := models.ZeroMoney()
	for _, share := range p.tree {
		total = total.Add(share.amount)
	}
	return total
}

// verifyPlan 落账前校验计划自洽
func (s *CommissionService) verifyPlan(orderID string, plan *allocationPlan) error {
	sum := models.SumMoney(plan.trustBase, plan.direct, plan.devBase, plan.treeTotal(), plan.remainder)
	nominalPool := models.NewMoneyFromDecimal(plan.orderAmount.Mul(treeCommissionPoolRate))
	if plan.treePool.IsNegative() || plan.remainder.IsNegative() ||
		!plan.treePool.WithinTolerance(nominalPool, maxRoundingDrift) ||
		!sum.WithinTolerance(plan.total, s.options.Tolerance) {
		logAllocationMismatch(orderID, plan, sum)
		return ErrAllocationMismatch
	}
	return nil
}

// applyPlanTx 落账：钱包与收益流水、信托基金、发展基金，返回实际入账合计
func (s *CommissionService) applyPlanTx(tx *gorm.DB, record *models.CommissionTransaction, plan *allocationPlan) (models.Money, error) {
	orderID := record.OrderID
	applied := models.ZeroMoney()
	userRepo := s.userRepo.WithTx(tx)
	earningRepo := s.earningRepo.WithTx(tx)
	now := time.Now()

	touched := make(map[string]*models.User)
	credit := func(user *models.User, amount models.Money, txnType, reference, remark string) error {
		if amount.IsZero() {
			return nil
		}
		before := user.Wallet
		user.Wallet = user.Wallet.Add(amount)
		switch txnType {
		case constants.EarningTxnTypeDirectCommission:
			user.DirectCommissionEarned = user.DirectCommissionEarned.Add(amount)
		case constants.EarningTxnTypeTreeCommission:
			user.TreeCommissionEarned = user.TreeCommissionEarned.Add(amount)
		}
		user.UpdatedAt = now
		touched[user.ID] = user
		order := orderID
		if err := earningRepo.CreateTransaction(&models.EarningTransaction{
			UserID:       user.ID,
			OrderID:      &order,
			Type:         txnType,
			Amount:       amount,
			WalletBefore: before,
			WalletAfter:  user.Wallet,
			Reference:    reference,
			Remark:       remark,
			CreatedAt:    now,
		}); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: duplicate earning reference %s", ErrAllocationMismatch, reference)
			}
			return wrapStorage("create earning transaction", err)
		}
		applied = applied.Add(amount)
		return nil
	}
	fund := func(fundType, txnType string, amount models.Money, description string) error {
		txn, err := s.ledger.CreditInTx(tx, FundCreditInput{
			FundType:    fundType,
			Amount:      amount,
			OrderID:     orderID,
			TxnType:     txnType,
			Description: description,
		})
		if err != nil {
			return err
		}
		if txn != nil {
			applied = applied.Add(txn.Amount)
		}
		return nil
	}

	// 1. 信托基金基础 3%
	if err := fund(constants.FundTypeTrust, constants.FundTxnTypeOrderAllocation, plan.trustBase,
		fmt.Sprintf("order %s: trust fund base %s%%", orderID, constants.TrustFundBasePercent)); err != nil {
		return applied, err
	}

	// 2. 直推佣金 3%
	if plan.directRedirected {
		metrics.IncRedirect(plan.directReason)
		if err := fund(constants.FundTypeTrust, constants.FundTxnTypeOrderAllocation, plan.direct,
			fmt.Sprintf("order %s: direct commission redirected (%s)", orderID, plan.directReason)); err != nil {
			return applied, err
		}
	} else {
		reference := fmt.Sprintf("order:%s:direct", orderID)
		if err := credit(plan.directReferrer, plan.direct, constants.EarningTxnTypeDirectCommission, reference,
			fmt.Sprintf("direct commission for order %s", orderID)); err != nil {
			return applied, err
		}
	}

	// 3. 树佣金
	for _, share := range plan.tree {
		if share.redirected {
			metrics.IncRedirect(constants.RedirectReasonAncestorSuspended)
			if err := fund(constants.FundTypeTrust, constants.FundTxnTypeOrderAllocation, share.amount,
				fmt.Sprintf("order %s: tree level %d share of %s redirected (%s)",
					orderID, share.level, share.recipient.ID, constants.RedirectReasonAncestorSuspended)); err != nil {
				return applied, err
			}
			continue
		}
		recipient := share.recipient
		if existing, ok := touched[recipient.ID]; ok {
			recipient = existing
		}
		reference := fmt.Sprintf("order:%s:tree:%d", orderID, share.level)
		if err := credit(recipient, share.amount, constants.EarningTxnTypeTreeCommission, reference,
			fmt.Sprintf("tree commission level %d (%s%%) for order %s", share.level, share.percentage.String(), orderID)); err != nil {
			return applied, err
		}
	}

	// 4-5. 发展基金 1% 与树佣金池剩余合并为一笔
	devTotal := plan.devBase.Add(plan.remainder)
	devType := constants.FundTxnTypeOrderAllocation
	if plan.remainder.GreaterThan(models.ZeroMoney()) {
		devType = constants.FundTxnTypeRemainder
	}
	if err := fund(constants.FundTypeDevelopment, devType, devTotal,
		fmt.Sprintf("order %s: development base %s + tree pool remainder %s",
			orderID, plan.devBase.String(), plan.remainder.String())); err != nil {
		return applied, err
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := userRepo.UpdateEarnings(touched[id]); err != nil {
			return applied, wrapStorage("update earnings", err)
		}
	}
	return applied, nil
}

func (s *CommissionService) afterCompleted(ctx context.Context, record *models.CommissionTransaction) {
	metrics.AddAllocated("trust", record.TrustFundAmount.Decimal)
	metrics.AddAllocated("direct", record.DirectCommissionAmount.Decimal)
	metrics.AddAllocated("tree", record.TreeCommissionTotal().Decimal)
	metrics.AddAllocated("development", record.DevTrustFundAmount.Decimal)
	metrics.AddAllocated("remainder", record.RemainderToDevFund.Decimal)
	if err := cache.SetCommission(ctx, record); err != nil {
		logger.Warnw("commission_cache_set_failed", "order_id", record.OrderID, "error", err)
	}
	logger.Infow("commission_distribute_completed",
		"order_id", record.OrderID,
		"purchaser_id", record.PurchaserID,
		"order_amount", record.OrderAmount.String(),
		"total", record.TotalCommission.String(),
		"direct_redirected", record.DirectRedirected,
		"tree_levels", len(record.TreeCommissions),
		"remainder", record.RemainderToDevFund.String(),
	)
}

// persistFailure 事务回滚后以单次写入落下 failed 记录：新订单直接插入 failed，已有记录原地更新原因
func (s *CommissionService) persistFailure(input DistributeInput, cause error) {
	reason := truncateFailureReason(cause.Error())
	existing, err := s.commissionRepo.GetByOrderID(input.OrderID)
	if err != nil {
		logger.Errorw("commission_failure_persist_failed", "order_id", input.OrderID, "error", err)
		return
	}
	switch {
	case existing == nil:
		record := &models.CommissionTransaction{
			OrderID:       input.OrderID,
			PurchaserID:   input.PurchaserID,
			OrderAmount:   input.OrderAmount,
			Status:        constants.CommissionStatusFailed,
			FailureReason: reason,
		}
		if err := s.commissionRepo.Create(record); err != nil {
			if isUniqueViolation(err) {
				logger.Infow("commission_failure_superseded", "order_id", input.OrderID)
				return
			}
			logger.Errorw("commission_failure_persist_failed", "order_id", input.OrderID, "error", err)
			return
		}
	case existing.Status != constants.CommissionStatusCompleted:
		if _, err := s.commissionRepo.MarkFailed(input.OrderID, reason); err != nil {
			logger.Errorw("commission_failure_persist_failed", "order_id", input.OrderID, "error", err)
			return
		}
	}
	logger.Errorw("commission_distribute_failed",
		"order_id", input.OrderID,
		"purchaser_id", input.PurchaserID,
		"order_amount", input.OrderAmount.String(),
		"category", string(ClassifyError(cause)),
		"error", cause,
	)
}

// GetByOrderID 查询订单佣金记录（已完成记录走缓存）
func (s *CommissionService) GetByOrderID(ctx context.Context, orderID string) (*models.CommissionTransaction, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	if cached, hit, err := cache.GetCommission(ctx, orderID); err == nil && hit {
		return cached, nil
	}
	record, err := s.commissionRepo.GetByOrderID(orderID)
	if err != nil {
		return nil, wrapStorage("load commission", err)
	}
	if record == nil {
		return nil, ErrCommissionNotFound
	}
	if err := cache.SetCommission(ctx, record); err != nil {
		logger.Warnw("commission_cache_set_failed", "order_id", orderID, "error", err)
	}
	return record, nil
}

// List 分页查询佣金记录
func (s *CommissionService) List(filter repository.CommissionListFilter) ([]models.CommissionTransaction, int64, error) {
	return s.commissionRepo.List(filter)
}

func truncateFailureReason(reason string) string {
	if len(reason) > 500 {
		return reason[:500]
	}
	return reason
}

func floorCents(value decimal.Decimal) models.Money {
	return models.NewMoneyFromDecimal(value.Truncate(2))
}

func uniqueSortedIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

func logAllocationMismatch(orderID string, plan *allocationPlan, allocated models.Money) {
	logger.Errorw("commission_allocation_mismatch",
		"order_id", orderID,
		"expected_total", plan.total.String(),
		"allocated_total", allocated.String(),
		"trust_base", plan.trustBase.String(),
		"direct", plan.direct.String(),
		"direct_redirected", plan.directRedirected,
		"tree_pool", plan.treePool.String(),
		"tree_total", plan.treeTotal().String(),
		"tree_levels", len(plan.tree),
		"dev_base", plan.devBase.String(),
		"remainder", plan.remainder.String(),
	)
}
