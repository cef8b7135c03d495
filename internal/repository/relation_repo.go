package repository

import (
	"context"
	"errors"
	"strings"

	"coinledger/internal/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// mysqlDuplicateEntry MySQL 唯一键冲突错误码
const mysqlDuplicateEntry = 1062

// IsDuplicateKey 判断是否为唯一键冲突
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	// SQLite 驱动未翻译时的兜底
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type RelationRepository struct {
	db *gorm.DB
}

func NewRelationRepository(db *gorm.DB) *RelationRepository {
	return &RelationRepository{db: db}
}

func (r *RelationRepository) Exists(ctx context.Context, actorID, targetID int64, kind string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.RelationToggle{}).
		Where("actor_id = ? AND target_id = ? AND kind = ?", actorID, targetID, kind).
		Count(&count).Error
	return count > 0, err
}

// Create 插入关系，唯一键冲突原样返回，由调用方用 IsDuplicateKey 判断
func (r *RelationRepository) Create(ctx context.Context, actorID, targetID int64, kind string) error {
	return r.db.WithContext(ctx).Create(&model.RelationToggle{
		ActorID:  actorID,
		TargetID: targetID,
		Kind:     kind,
	}).Error
}

// Delete 删除关系，返回实际删除的行数
func (r *RelationRepository) Delete(ctx context.Context, actorID, targetID int64, kind string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ? AND kind = ?", actorID, targetID, kind).
		Delete(&model.RelationToggle{})
	return result.RowsAffected, result.Error
}

func (r *RelationRepository) CountByTarget(ctx context.Context, targetID int64, kind string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.RelationToggle{}).
		Where("target_id = ? AND kind = ?", targetID, kind).
		Count(&count).Error
	return count, err
}
