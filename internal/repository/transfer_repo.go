package repository

import (
	"context"
	"errors"

	"coinledger/internal/model"

	"gorm.io/gorm"
)

type TransferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, tx *gorm.DB, record *model.TransferRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

// GetByIdempotencyKey 不存在时返回 nil, nil
func (r *TransferRepository) GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*model.TransferRecord, error) {
	if tx == nil {
		tx = r.db
	}
	var record model.TransferRecord
	err := tx.WithContext(ctx).Where("idempotency_key = ?", key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
