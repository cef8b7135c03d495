package repository

import (
	"context"

	"coinledger/internal/model"

	"gorm.io/gorm"
)

// LedgerFilter 流水查询条件，空字段表示不过滤
type LedgerFilter struct {
	BalanceType string
	OpType      string
	Desc        bool // true 时按时间倒序（最新在前）
}

// TransactionRepository 账本流水，只提供写入和查询，不提供修改和删除
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// ListByUserID 按创建顺序分页查询用户流水
func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, filter LedgerFilter, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("user_id = ?", userID)
	if filter.BalanceType != "" {
		query = query.Where("balance_type = ?", filter.BalanceType)
	}
	if filter.OpType != "" {
		query = query.Where("op_type = ?", filter.OpType)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	order := "id ASC"
	if filter.Desc {
		order = "id DESC"
	}

	err = query.
		Order(order).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

// ListByRelatedID 查询某个业务单号产生的全部流水
func (r *TransactionRepository) ListByRelatedID(ctx context.Context, relatedID string) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("related_id = ?", relatedID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// SumDelta 某账户某余额类型的流水累计值
func (r *TransactionRepository) SumDelta(ctx context.Context, userID int64, balanceType string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("user_id = ? AND balance_type = ?", userID, balanceType).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&sum).Error
	return sum, err
}
