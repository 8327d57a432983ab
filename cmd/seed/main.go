package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dujiao-next/referral-ledger/internal/app"
	"github.com/dujiao-next/referral-ledger/internal/config"
	"github.com/dujiao-next/referral-ledger/internal/logger"
	"github.com/dujiao-next/referral-ledger/internal/models"
	"github.com/dujiao-next/referral-ledger/internal/provider"
	"github.com/dujiao-next/referral-ledger/internal/service"
)

type seedUser struct {
	ID         string
	ReferrerID string
}

type seedOrder struct {
	OrderID     string
	PurchaserID string
	Amount      string
}

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := app.PrepareDatabase(cfg); err != nil {
		stdLog.Fatalf("Failed to prepare database: %v", err)
	}
	container := provider.NewContainerWithDB(cfg, models.DB, nil)

	// 一棵演示树：根节点推荐 7 人（第 6、7 人溢出到下一层），再向下延伸一条链
	users := []seedUser{{ID: "demo-root"}}
	for i := 1; i <= 7; i++ {
		users = append(users, seedUser{ID: fmt.Sprintf("demo-l2-%02d", i), ReferrerID: "demo-root"})
	}
	parent := "demo-l2-01"
	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("demo-chain-%02d", i)
		users = append(users, seedUser{ID: id, ReferrerID: parent})
		parent = id
	}

	for _, item := range users {
		user, err := container.UserService.Register(service.RegisterInput{
			UserID:     item.ID,
			ReferrerID: item.ReferrerID,
		})
		switch {
		case errors.Is(err, service.ErrUserExists):
			stdLog.Printf("User already exists: %s", item.ID)
		case err != nil:
			stdLog.Printf("Failed to register user %s: %v", item.ID, err)
		default:
			stdLog.Printf("Created user: %s (code %s, level %d)", user.ID, user.ReferralCode, user.TreeLevel)
		}
	}

	// 演示订单：最后一位下单人位于链尾，可观察多层树佣金
	orders := []seedOrder{
		{OrderID: "demo-order-0001", PurchaserID: "demo-l2-03", Amount: "1000"},
		{OrderID: "demo-order-0002", PurchaserID: "demo-root", Amount: "250.50"},
		{OrderID: "demo-order-0003", PurchaserID: "demo-chain-04", Amount: "99.99"},
	}
	for _, order := range orders {
		amount, err := models.NewMoneyFromString(order.Amount)
		if err != nil {
			stdLog.Printf("Skip order %s: %v", order.OrderID, err)
			continue
		}
		record, err := container.CommissionService.Distribute(context.Background(), service.DistributeInput{
			OrderID:     order.OrderID,
			PurchaserID: order.PurchaserID,
			OrderAmount: amount,
		})
		if err != nil {
			stdLog.Printf("Failed to distribute order %s: %v", order.OrderID, err)
			continue
		}
		stdLog.Printf("Distributed order %s: total %s, direct %s, tree %s, remainder %s",
			record.OrderID,
			record.TotalCommission.String(),
			record.DirectCommissionAmount.String(),
			record.TreeCommissionTotal().String(),
			record.RemainderToDevFund.String(),
		)
	}

	funds, err := container.LedgerService.ListFunds()
	if err != nil {
		stdLog.Fatalf("Failed to list funds: %v", err)
	}
	for _, fund := range funds {
		stdLog.Printf("Fund %s balance: %s", fund.FundType, fund.Balance.String())
	}
	stdLog.Println("Seed completed")
}
