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
	ErrSubjectNotFound = errors.New("悬赏不存在")
	ErrSubjectResolved = errors.New("悬赏已被采纳")
)

type EscrowRepository struct {
	db *gorm.DB
}

func NewEscrowRepository(db *gorm.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

func (r *EscrowRepository) Create(ctx context.Context, tx *gorm.DB, subject *model.EscrowSubject) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(subject).Error
}

func (r *EscrowRepository) GetByID(ctx context.Context, id int64) (*model.EscrowSubject, error) {
	var subject model.EscrowSubject
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&subject).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, err
	}
	return &subject, nil
}

// GetByIDForUpdate 加行锁读取悬赏，必须在事务内调用
func (r *EscrowRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.EscrowSubject, error) {
	var subject model.EscrowSubject
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&subject).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, err
	}
	return &subject, nil
}

// MarkResolved 只在 resolved = false 时生效，多个并发采纳只有一个能更新成功
func (r *EscrowRepository) MarkResolved(ctx context.Context, tx *gorm.DB, id, recipientID, commentID int64, at time.Time) error {
	result := tx.WithContext(ctx).
		Model(&model.EscrowSubject{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"resolved":           true,
			"recipient_user_id":  recipientID,
			"adopted_comment_id": commentID,
			"resolved_at":        at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSubjectResolved
	}
	return nil
}
