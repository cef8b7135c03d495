package service

import (
	"context"
	"fmt"
	"time"

	"coinledger/internal/config"
	"coinledger/internal/model"
	"coinledger/internal/repository"
	"coinledger/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderService 充值订单：创建 -> 支付网关回调确认 -> 入账
type OrderService struct {
	db           *gorm.DB
	cfg          *config.Config
	orderRepo    *repository.OrderRepository
	accountRepo  *repository.AccountRepository
	outboxRepo   *repository.OutboxRepository
	entries      entryWriter
	exchangeRate decimal.Decimal
	now          func() time.Time
}

func NewOrderService(db *gorm.DB, cfg *config.Config) (*OrderService, error) {
	rate, err := decimal.NewFromString(cfg.Ledger.ExchangeRate)
	if err != nil || !rate.IsPositive() {
		return nil, fmt.Errorf("汇率配置不合法: %q", cfg.Ledger.ExchangeRate)
	}

	return &OrderService{
		db:           db,
		cfg:          cfg,
		orderRepo:    repository.NewOrderRepository(db),
		accountRepo:  repository.NewAccountRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
		entries:      entryWriter{transactionRepo: repository.NewTransactionRepository(db)},
		exchangeRate: rate,
		now:          time.Now,
	}, nil
}

// CoinsFor 按固定汇率换算硬币数，向下取整
func (s *OrderService) CoinsFor(amountCNY decimal.Decimal) int64 {
	return amountCNY.Mul(s.exchangeRate).Floor().IntPart()
}

// CreateOrder 创建充值订单，生成新的幂等键，支付网关回调时用它确认
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, amountCNY decimal.Decimal, method string) (*model.RechargeOrder, error) {
	if userID <= 0 {
		return nil, invalidf("user_id 不合法")
	}
	if !amountCNY.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if !amountCNY.Equal(amountCNY.Truncate(2)) {
		return nil, invalidf("金额最多两位小数")
	}
	if !s.methodAllowed(method) {
		return nil, invalidf("不支持的支付方式: %s", method)
	}
	coins := s.CoinsFor(amountCNY)
	if coins <= 0 {
		return nil, invalidf("充值金额过小")
	}

	now := s.now()
	order := &model.RechargeOrder{
		OrderNo:        idgen.GenerateOrderNo(),
		IdempotencyKey: uuid.NewString(),
		UserID:         userID,
		AmountCNY:      amountCNY,
		CoinsAmount:    coins,
		Method:         method,
		Status:         model.OrderStatusPending,
		ExpiredAt:      now.Add(time.Duration(s.cfg.Business.OrderTimeoutMinutes) * time.Minute),
	}

	if err := s.orderRepo.Create(ctx, nil, order); err != nil {
		return nil, translateError(err, "创建订单")
	}

	zap.L().Info("创建充值订单",
		zap.String("order_no", order.OrderNo),
		zap.Int64("user_id", userID),
		zap.String("amount_cny", amountCNY.StringFixed(2)),
		zap.Int64("coins", coins))
	return order, nil
}

func (s *OrderService) methodAllowed(method string) bool {
	for _, m := range s.cfg.Ledger.RechargeMethods {
		if m == method {
			return true
		}
	}
	return false
}

type ConfirmResult struct {
	Applied     bool                 `json:"applied"`   // 订单已入账（本次或之前）
	Duplicate   bool                 `json:"duplicate"` // 重复确认，本次未做任何修改
	Order       *model.RechargeOrder `json:"order"`
	PaidBalance int64                `json:"paid_balance,omitempty"`
}

// Confirm 支付网关回调确认
//
// PENDING -> PAID 只会发生一次：订单行加锁 + 状态条件更新。
// 同一幂等键重复确认（回调重复投递）不做任何修改，返回已入账的结果
func (s *OrderService) Confirm(ctx context.Context, idempotencyKey string) (*ConfirmResult, error) {
	if idempotencyKey == "" {
		return nil, invalidf("幂等键不能为空")
	}

	result := &ConfirmResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.GetByIdempotencyKeyForUpdate(ctx, tx, idempotencyKey)
		if err != nil {
			return err
		}

		switch order.Status {
		case model.OrderStatusPaid:
			result.Applied = true
			result.Duplicate = true
			result.Order = order
			return nil
		case model.OrderStatusPending:
		default:
			return fmt.Errorf("%w: 订单 %s 状态为 %s，不能确认", ErrOrderStatus, order.OrderNo, order.Status)
		}

		if _, err := s.accountRepo.GetOrCreate(ctx, tx, order.UserID); err != nil {
			return fmt.Errorf("创建账户失败: %w", err)
		}
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, order.UserID)
		if err != nil {
			return err
		}

		paidAt := s.now()
		if err := s.orderRepo.UpdateStatus(ctx, tx, order.OrderNo, model.OrderStatusPending, model.OrderStatusPaid, paidAt); err != nil {
			return err
		}
		if err := s.accountRepo.Increase(ctx, tx, order.UserID, order.CoinsAmount); err != nil {
			return fmt.Errorf("充值入账失败: %w", err)
		}

		desc := fmt.Sprintf("充值-%s-%s元", order.Method, order.AmountCNY.StringFixed(2))
		if _, err := s.entries.write(ctx, tx, order.UserID, model.BalanceTypePaid, model.OpTypeRecharge,
			order.CoinsAmount, account.PaidBalance, order.OrderNo, desc); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		err = s.outboxRepo.Publish(ctx, tx, s.cfg.Kafka.Topic.LedgerEvent, order.OrderNo, model.EventOrderPaid, map[string]interface{}{
			"order_no":   order.OrderNo,
			"user_id":    order.UserID,
			"amount_cny": order.AmountCNY.StringFixed(2),
			"coins":      order.CoinsAmount,
			"method":     order.Method,
			"paid_at":    paidAt.Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		order.Status = model.OrderStatusPaid
		order.PaidAt = &paidAt
		result.Applied = true
		result.Order = order
		result.PaidBalance = account.PaidBalance + order.CoinsAmount
		return nil
	})
	if err != nil {
		return nil, translateError(err, "确认充值")
	}

	if !result.Duplicate {
		zap.L().Info("充值入账成功",
			zap.String("order_no", result.Order.OrderNo),
			zap.Int64("user_id", result.Order.UserID),
			zap.Int64("coins", result.Order.CoinsAmount))
	}
	return result, nil
}

// MarkFailed 支付网关通知支付失败，PENDING -> FAILED；已失败的订单重复通知直接返回
func (s *OrderService) MarkFailed(ctx context.Context, idempotencyKey string) (*model.RechargeOrder, error) {
	var order *model.RechargeOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.orderRepo.GetByIdempotencyKeyForUpdate(ctx, tx, idempotencyKey)
		if err != nil {
			return err
		}
		switch order.Status {
		case model.OrderStatusFailed:
			return nil
		case model.OrderStatusPaid:
			return fmt.Errorf("%w: 订单 %s 已入账", ErrOrderStatus, order.OrderNo)
		}
		if err := s.orderRepo.UpdateStatus(ctx, tx, order.OrderNo, order.Status, model.OrderStatusFailed, s.now()); err != nil {
			return err
		}
		order.Status = model.OrderStatusFailed
		return nil
	})
	if err != nil {
		return nil, translateError(err, "关闭订单")
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderNo string) (*model.RechargeOrder, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, translateError(err, "查询订单")
	}
	return order, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]*model.RechargeOrder, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	orders, total, err := s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, translateError(err, "查询订单")
	}
	return orders, total, nil
}

// CloseExpiredOrders 把超时未支付的订单置为 FAILED，返回关闭数量
func (s *OrderService) CloseExpiredOrders(ctx context.Context, limit int) (int, error) {
	orders, err := s.orderRepo.GetExpiredOrders(ctx, s.now(), limit)
	if err != nil {
		return 0, translateError(err, "查询超时订单")
	}

	closedCount := 0
	for _, order := range orders {
		// 条件更新：回调恰好在此时入账的订单不会被误关
		err := s.orderRepo.UpdateStatus(ctx, nil, order.OrderNo, model.OrderStatusPending, model.OrderStatusFailed, s.now())
		if err != nil {
			zap.L().Warn("关闭超时订单失败", zap.String("order_no", order.OrderNo), zap.Error(err))
			continue
		}
		closedCount++
		zap.L().Info("订单已超时关闭",
			zap.String("order_no", order.OrderNo),
			zap.Int64("user_id", order.UserID),
			zap.Int64("coins", order.CoinsAmount))
	}
	return closedCount, nil
}
