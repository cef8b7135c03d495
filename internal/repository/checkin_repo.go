package repository

import (
	"context"
	"errors"

	"coinledger/internal/model"

	"gorm.io/gorm"
)

type CheckinRepository struct {
	db *gorm.DB
}

func NewCheckinRepository(db *gorm.DB) *CheckinRepository {
	return &CheckinRepository{db: db}
}

func (r *CheckinRepository) Create(ctx context.Context, tx *gorm.DB, record *model.CheckinRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

// Get 不存在时返回 nil, nil
func (r *CheckinRepository) Get(ctx context.Context, userID int64, date string) (*model.CheckinRecord, error) {
	var record model.CheckinRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND checkin_date = ?", userID, date).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
