package repository

import (
	"context"
	"errors"

	"coinledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository 声望 / 经验值，更新失败不影响主流程
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Get(ctx context.Context, userID int64) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.UserProfile{UserID: userID}, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepository) IncrementReputation(ctx context.Context, userID int64, delta int64) error {
	return r.increment(ctx, userID, "reputation", delta)
}

func (r *ProfileRepository) IncrementExperience(ctx context.Context, userID int64, delta int64) error {
	return r.increment(ctx, userID, "experience", delta)
}

func (r *ProfileRepository) increment(ctx context.Context, userID int64, column string, delta int64) error {
	db := r.db.WithContext(ctx)

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&model.UserProfile{UserID: userID}).Error
	if err != nil {
		return err
	}

	return db.Model(&model.UserProfile{}).
		Where("user_id = ?", userID).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
}
