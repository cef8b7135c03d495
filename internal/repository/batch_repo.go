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
	ErrBatchChanged = errors.New("硬币批次已被修改，请重试")
)

// BatchRepository 免费硬币批次
//
// 活跃批次：is_depleted = false 且 expire_at > now
// 未结清批次：is_depleted = false（包含已过期但尚未被回收任务处理的批次）
type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *BatchRepository) Create(ctx context.Context, tx *gorm.DB, batch *model.CreditBatch) error {
	return r.conn(tx).WithContext(ctx).Create(batch).Error
}

// ListSpendableForUpdate 加锁读取可消费批次，按过期时间升序（先过期先扣）
func (r *BatchRepository) ListSpendableForUpdate(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) ([]*model.CreditBatch, error) {
	var batches []*model.CreditBatch
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND is_depleted = ? AND expire_at > ?", userID, false, now).
		Order("expire_at ASC, id ASC").
		Find(&batches).Error
	return batches, err
}

// Decrement 从批次中扣减 amount
// 以读取时的剩余额度做条件，剩余为 0 时同时标记为已耗尽
func (r *BatchRepository) Decrement(ctx context.Context, tx *gorm.DB, batch *model.CreditBatch, amount int64) error {
	if amount <= 0 || amount > batch.RemainingAmount {
		return ErrBalanceNotEnough
	}

	remaining := batch.RemainingAmount - amount
	result := tx.WithContext(ctx).
		Model(&model.CreditBatch{}).
		Where("id = ? AND remaining_amount = ? AND is_depleted = ?", batch.ID, batch.RemainingAmount, false).
		Updates(map[string]interface{}{
			"remaining_amount": remaining,
			"is_depleted":      remaining == 0,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBatchChanged
	}

	batch.RemainingAmount = remaining
	batch.IsDepleted = remaining == 0
	return nil
}

// Expire 回收过期批次：剩余额度清零并标记耗尽
func (r *BatchRepository) Expire(ctx context.Context, tx *gorm.DB, batch *model.CreditBatch) error {
	result := tx.WithContext(ctx).
		Model(&model.CreditBatch{}).
		Where("id = ? AND remaining_amount = ? AND is_depleted = ?", batch.ID, batch.RemainingAmount, false).
		Updates(map[string]interface{}{
			"remaining_amount": 0,
			"is_depleted":      true,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBatchChanged
	}
	return nil
}

func (r *BatchRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.CreditBatch, error) {
	var batch model.CreditBatch
	if err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetForUpdate 加锁读取单个批次
func (r *BatchRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.CreditBatch, error) {
	var batch model.CreditBatch
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// SumActive 活跃批次剩余额度之和，即可用免费余额
func (r *BatchRepository) SumActive(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) (int64, error) {
	var sum int64
	err := r.conn(tx).WithContext(ctx).
		Model(&model.CreditBatch{}).
		Where("user_id = ? AND is_depleted = ? AND expire_at > ?", userID, false, now).
		Select("COALESCE(SUM(remaining_amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// SumExpiring 在 (now, until] 之间过期的活跃批次剩余额度之和
func (r *BatchRepository) SumExpiring(ctx context.Context, userID int64, now, until time.Time) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.CreditBatch{}).
		Where("user_id = ? AND is_depleted = ? AND expire_at > ? AND expire_at <= ?", userID, false, now, until).
		Select("COALESCE(SUM(remaining_amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// SumOutstanding 未结清批次剩余额度之和，与 FREE 流水累计值一一对应
func (r *BatchRepository) SumOutstanding(ctx context.Context, tx *gorm.DB, userID int64) (int64, error) {
	var sum int64
	err := r.conn(tx).WithContext(ctx).
		Model(&model.CreditBatch{}).
		Where("user_id = ? AND is_depleted = ?", userID, false).
		Select("COALESCE(SUM(remaining_amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// ListExpired 查询已过期但尚未回收的批次
func (r *BatchRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.CreditBatch, error) {
	var batches []*model.CreditBatch
	err := r.db.WithContext(ctx).
		Where("is_depleted = ? AND expire_at <= ?", false, now).
		Order("expire_at ASC, id ASC").
		Limit(limit).
		Find(&batches).Error
	return batches, err
}

// ListExpiredByUserForUpdate 加锁读取用户已过期但尚未回收的批次
func (r *BatchRepository) ListExpiredByUserForUpdate(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) ([]*model.CreditBatch, error) {
	var batches []*model.CreditBatch
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND is_depleted = ? AND expire_at <= ?", userID, false, now).
		Order("expire_at ASC, id ASC").
		Find(&batches).Error
	return batches, err
}

// ListByUserID 查询用户的活跃批次，按过期时间升序
func (r *BatchRepository) ListByUserID(ctx context.Context, userID int64, now time.Time) ([]*model.CreditBatch, error) {
	var batches []*model.CreditBatch
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_depleted = ? AND expire_at > ?", userID, false, now).
		Order("expire_at ASC, id ASC").
		Find(&batches).Error
	return batches, err
}
