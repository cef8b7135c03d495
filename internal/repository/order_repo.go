package repository

import (
	"context"
	"errors"
	"time"

	"coinledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOrderNotFound      = errors.New("订单不存在")
	ErrOrderStatusInvalid = errors.New("订单状态不合法")
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.RechargeOrder) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.RechargeOrder, error) {
	var order model.RechargeOrder
	err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetByIdempotencyKeyForUpdate 加行锁按幂等键读取订单，必须在事务内调用
func (r *OrderRepository) GetByIdempotencyKeyForUpdate(ctx context.Context, tx *gorm.DB, key string) (*model.RechargeOrder, error) {
	var order model.RechargeOrder
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("idempotency_key = ?", key).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus 状态机校验 + 条件更新（status = fromStatus），保证每个迁移只发生一次
// 迁移到 PAID 时 at 写入 paid_at
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, orderNo string, fromStatus, toStatus string, at time.Time) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrOrderStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}

	if toStatus == model.OrderStatusPaid {
		updates["paid_at"] = &at
	}

	result := tx.WithContext(ctx).
		Model(&model.RechargeOrder{}).
		Where("order_no = ? AND status = ?", orderNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOrderStatusInvalid
	}

	return nil
}

func (r *OrderRepository) GetExpiredOrders(ctx context.Context, now time.Time, limit int) ([]*model.RechargeOrder, error) {
	var orders []*model.RechargeOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND expired_at < ?", model.OrderStatusPending, now).
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.RechargeOrder, int64, error) {
	var orders []*model.RechargeOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RechargeOrder{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
