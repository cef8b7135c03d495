package service

import (
	"context"

	"coinledger/internal/model"
	"coinledger/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ToggleService 点赞 / 收藏 / 关注开关
type ToggleService struct {
	relationRepo *repository.RelationRepository
}

func NewToggleService(db *gorm.DB) *ToggleService {
	return &ToggleService{
		relationRepo: repository.NewRelationRepository(db),
	}
}

// Toggle 切换关系，返回切换后是否处于激活状态
//
// 已存在则删除返回 false；不存在则插入返回 true。
// 插入时遇到唯一键冲突，说明并发的同一操作已经插入成功，按成功处理，不向调用方报错
func (s *ToggleService) Toggle(ctx context.Context, actorID, targetID int64, kind string) (bool, error) {
	if err := validateRelation(actorID, targetID, kind); err != nil {
		return false, err
	}

	exists, err := s.relationRepo.Exists(ctx, actorID, targetID, kind)
	if err != nil {
		return false, translateError(err, "查询关系")
	}

	if exists {
		if _, err := s.relationRepo.Delete(ctx, actorID, targetID, kind); err != nil {
			return false, translateError(err, "取消关系")
		}
		return false, nil
	}

	return s.activate(ctx, actorID, targetID, kind)
}

func (s *ToggleService) activate(ctx context.Context, actorID, targetID int64, kind string) (bool, error) {
	err := s.relationRepo.Create(ctx, actorID, targetID, kind)
	if err == nil {
		return true, nil
	}
	if repository.IsDuplicateKey(err) {
		zap.L().Debug("关系已被并发请求创建",
			zap.Int64("actor_id", actorID),
			zap.Int64("target_id", targetID),
			zap.String("kind", kind))
		return true, nil
	}
	return false, translateError(err, "建立关系")
}

// IsActive 查询关系是否存在
func (s *ToggleService) IsActive(ctx context.Context, actorID, targetID int64, kind string) (bool, error) {
	if err := validateRelation(actorID, targetID, kind); err != nil {
		return false, err
	}
	exists, err := s.relationRepo.Exists(ctx, actorID, targetID, kind)
	if err != nil {
		return false, translateError(err, "查询关系")
	}
	return exists, nil
}

// Count 目标被点赞 / 收藏 / 关注的次数
func (s *ToggleService) Count(ctx context.Context, targetID int64, kind string) (int64, error) {
	if !model.ValidRelationKinds[kind] {
		return 0, invalidf("kind 不合法: %s", kind)
	}
	count, err := s.relationRepo.CountByTarget(ctx, targetID, kind)
	if err != nil {
		return 0, translateError(err, "统计关系")
	}
	return count, nil
}

func validateRelation(actorID, targetID int64, kind string) error {
	if !model.ValidRelationKinds[kind] {
		return invalidf("kind 不合法: %s", kind)
	}
	if actorID <= 0 || targetID <= 0 {
		return invalidf("actor_id / target_id 不合法")
	}
	if kind == model.RelationFollow && actorID == targetID {
		return ErrSelfFollow
	}
	return nil
}
