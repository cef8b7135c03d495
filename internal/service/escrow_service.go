package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coinledger/internal/config"
	"coinledger/internal/infrastructure/lock"
	"coinledger/internal/model"
	"coinledger/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EscrowService 悬赏帖与评论采纳
type EscrowService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	escrowRepo  *repository.EscrowRepository
	accountRepo *repository.AccountRepository
	profileRepo *repository.ProfileRepository
	outboxRepo  *repository.OutboxRepository
	transfer    *TransferService
	now         func() time.Time
}

func NewEscrowService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, transfer *TransferService) *EscrowService {
	return &EscrowService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		escrowRepo:  repository.NewEscrowRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		profileRepo: repository.NewProfileRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		transfer:    transfer,
		now:         time.Now,
	}
}

// CreateSubject 为悬赏帖登记悬赏；悬赏金额在采纳时才从发帖人付费余额转出
func (s *EscrowService) CreateSubject(ctx context.Context, postID, ownerID, bounty int64) (*model.EscrowSubject, error) {
	if postID <= 0 || ownerID <= 0 {
		return nil, invalidf("post_id / owner_id 不合法")
	}
	if bounty < 0 {
		return nil, ErrNegativeAmount
	}

	subject := &model.EscrowSubject{
		PostID:       postID,
		OwnerUserID:  ownerID,
		BountyAmount: bounty,
	}
	if err := s.escrowRepo.Create(ctx, nil, subject); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, fmt.Errorf("%w: 帖子 %d 已设置悬赏", ErrConflict, postID)
		}
		return nil, translateError(err, "创建悬赏")
	}
	return subject, nil
}

func (s *EscrowService) GetSubject(ctx context.Context, id int64) (*model.EscrowSubject, error) {
	subject, err := s.escrowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateError(err, "查询悬赏")
	}
	return subject, nil
}

type AdoptRequest struct {
	SubjectID   int64
	CallerID    int64 // 发起采纳的用户，必须是悬赏发起人
	RecipientID int64 // 被采纳评论的作者
	CommentID   int64
}

type AdoptResult struct {
	Success  bool                 `json:"success"`
	Subject  *model.EscrowSubject `json:"subject"`
	Transfer *TransferResult      `json:"transfer,omitempty"`
}

// Adopt 采纳评论并发放悬赏
//
// 【流程】一个数据库事务内完成：
//  1. 加行锁读取悬赏，校验未采纳、调用方是发起人
//  2. 条件更新 resolved=false -> true，并发采纳只有一个能成功
//  3. 悬赏金额大于 0 时，在同一事务内从发起人转账给被采纳者
//  4. 写 bounty.adopted 事件
//
// 任何一步失败整个事务回滚，悬赏保持未采纳，不会留下任何流水。
// 提交后给被采纳者增加声望，失败只记录日志
func (s *EscrowService) Adopt(ctx context.Context, req *AdoptRequest) (*AdoptResult, error) {
	if req.SubjectID <= 0 || req.CallerID <= 0 || req.RecipientID <= 0 {
		return nil, invalidf("参数不合法")
	}

	// 锁外快速校验，已采纳的请求不必排队
	subject, err := s.escrowRepo.GetByID(ctx, req.SubjectID)
	if err != nil {
		return nil, translateError(err, "查询悬赏")
	}
	if err := s.checkAdoptable(subject, req); err != nil {
		return nil, err
	}

	subjectLock := lock.NewSubjectLock(s.redisClient, req.SubjectID, uuid.NewString())
	if err := subjectLock.Lock(ctx, 50*time.Millisecond, 60); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer subjectLock.Unlock(context.WithoutCancel(ctx))

	var transferResult *TransferResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.escrowRepo.GetByIDForUpdate(ctx, tx, req.SubjectID)
		if err != nil {
			return err
		}
		if err := s.checkAdoptable(locked, req); err != nil {
			return err
		}

		if locked.BountyAmount > 0 {
			owner, err := s.accountRepo.GetByUserID(ctx, tx, locked.OwnerUserID)
			if errors.Is(err, repository.ErrAccountNotFound) || (err == nil && owner.PaidBalance < locked.BountyAmount) {
				return ErrInsufficientBalance
			}
			if err != nil {
				return err
			}
		}

		now := s.now()
		if err := s.escrowRepo.MarkResolved(ctx, tx, locked.ID, req.RecipientID, req.CommentID, now); err != nil {
			return err
		}

		if locked.BountyAmount > 0 {
			transferResult, err = s.transfer.transferTx(ctx, tx, &TransferRequest{
				FromUserID:     locked.OwnerUserID,
				ToUserID:       req.RecipientID,
				Amount:         locked.BountyAmount,
				OpType:         model.OpTypeBountyReward,
				Description:    fmt.Sprintf("悬赏采纳-帖子%d-评论%d", locked.PostID, req.CommentID),
				IdempotencyKey: bountyIdempotencyKey(locked.ID),
			})
			if err != nil {
				return err
			}
		}

		return s.outboxRepo.Publish(ctx, tx, s.cfg.Kafka.Topic.LedgerEvent, fmt.Sprintf("bounty-%d", locked.ID), model.EventBountyAdopted, map[string]interface{}{
			"subject_id":   locked.ID,
			"post_id":      locked.PostID,
			"owner_id":     locked.OwnerUserID,
			"recipient_id": req.RecipientID,
			"comment_id":   req.CommentID,
			"bounty":       locked.BountyAmount,
			"resolved_at":  now.Format(time.RFC3339),
		})
	})
	if err != nil {
		err = translateError(err, "采纳")
		zap.L().Warn("采纳失败，悬赏保持未采纳",
			zap.Int64("subject_id", req.SubjectID),
			zap.Int64("recipient_id", req.RecipientID),
			zap.Error(err))
		return nil, err
	}

	bestEffort(ctx, "bounty_reputation", func(ctx context.Context) error {
		return s.profileRepo.IncrementReputation(ctx, req.RecipientID, s.cfg.Ledger.BountyReputation)
	})

	resolved, err := s.escrowRepo.GetByID(ctx, req.SubjectID)
	if err != nil {
		// 已提交，读回失败不影响结果
		resolved = subject
	}

	zap.L().Info("采纳成功",
		zap.Int64("subject_id", req.SubjectID),
		zap.Int64("recipient_id", req.RecipientID),
		zap.Int64("bounty", subject.BountyAmount))

	return &AdoptResult{
		Success:  true,
		Subject:  resolved,
		Transfer: transferResult,
	}, nil
}

func (s *EscrowService) checkAdoptable(subject *model.EscrowSubject, req *AdoptRequest) error {
	if subject.Resolved {
		return ErrAlreadyResolved
	}
	if subject.OwnerUserID != req.CallerID {
		return ErrNotAuthorized
	}
	if req.RecipientID == subject.OwnerUserID {
		return invalidf("不能采纳自己的评论")
	}
	return nil
}

func bountyIdempotencyKey(subjectID int64) string {
	return fmt.Sprintf("bounty:%d", subjectID)
}
