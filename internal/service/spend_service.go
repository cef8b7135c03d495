package service

import (
	"context"
	"fmt"
	"strconv"
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

type SpendService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	accountRepo *repository.AccountRepository
	batchRepo   *repository.BatchRepository
	entries     entryWriter
	accounts    *AccountService
	now         func() time.Time
}

func NewSpendService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, accounts *AccountService) *SpendService {
	return &SpendService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
		batchRepo:   repository.NewBatchRepository(db),
		entries:     entryWriter{transactionRepo: repository.NewTransactionRepository(db)},
		accounts:    accounts,
		now:         time.Now,
	}
}

type SpendRequest struct {
	UserID      int64
	Amount      int64
	Description string
	AllowFree   bool   // false 时只扣付费余额
	RelatedID   string // 业务单号（礼物、付费阅读等），写入流水
}

type SpendResult struct {
	SpentFree   int64 `json:"spent_free"`
	SpentPaid   int64 `json:"spent_paid"`
	PaidBalance int64 `json:"paid_balance"`
}

// Spend 消费硬币
//
// 【扣减顺序】
// 1. AllowFree 时先扣免费批次：按过期时间升序，先过期的先扣，扣完的批次标记为耗尽
// 2. 不足部分扣付费余额
//
// 扣减前在同一事务内回收该用户已过期的批次。
// 全部成功或全部失败：余额不足时不修改任何批次和余额，也不写流水。
// 每个被扣减的批次写一条 FREE 流水（related_id 为批次ID），付费部分写一条 PAID 流水
func (s *SpendService) Spend(ctx context.Context, req *SpendRequest) (*SpendResult, error) {
	if req.UserID <= 0 {
		return nil, invalidf("user_id 不合法")
	}
	if req.Amount < 0 {
		return nil, ErrNegativeAmount
	}
	if req.Amount == 0 {
		return &SpendResult{}, nil
	}

	spendLock := lock.NewAccountLock(s.redisClient, req.UserID, uuid.NewString())
	if err := spendLock.Lock(ctx, 50*time.Millisecond, 60); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer spendLock.Unlock(context.WithoutCancel(ctx))

	result := &SpendResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.accountRepo.GetOrCreate(ctx, tx, req.UserID); err != nil {
			return fmt.Errorf("创建账户失败: %w", err)
		}
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		// 先回收已过期批次，FREE 流水的 balance_before 只包含仍然有效的批次
		now := s.now()
		if err := s.accounts.reapUserTx(ctx, tx, req.UserID, now); err != nil {
			return err
		}

		var batches []*model.CreditBatch
		var freeAvailable int64
		if req.AllowFree {
			batches, err = s.batchRepo.ListSpendableForUpdate(ctx, tx, req.UserID, now)
			if err != nil {
				return err
			}
			for _, b := range batches {
				freeAvailable += b.RemainingAmount
			}
		}

		freeToSpend := min(freeAvailable, req.Amount)
		paidToSpend := req.Amount - freeToSpend
		if paidToSpend > account.PaidBalance {
			return ErrInsufficientBalance
		}

		if freeToSpend > 0 {
			if err := s.spendFree(ctx, tx, req, batches, freeToSpend); err != nil {
				return err
			}
		}

		if paidToSpend > 0 {
			if err := s.accountRepo.Deduct(ctx, tx, req.UserID, paidToSpend, account.Version); err != nil {
				return err
			}
			if _, err := s.entries.write(ctx, tx, req.UserID, model.BalanceTypePaid, model.OpTypeSpend,
				-paidToSpend, account.PaidBalance, req.RelatedID, req.Description); err != nil {
				return fmt.Errorf("记录流水失败: %w", err)
			}
		}

		result.SpentFree = freeToSpend
		result.SpentPaid = paidToSpend
		result.PaidBalance = account.PaidBalance - paidToSpend
		return nil
	})
	if err != nil {
		return nil, translateError(err, "消费")
	}

	zap.L().Info("消费成功",
		zap.Int64("user_id", req.UserID),
		zap.Int64("spent_free", result.SpentFree),
		zap.Int64("spent_paid", result.SpentPaid),
		zap.String("related_id", req.RelatedID))
	return result, nil
}

// spendFree 按顺序扣减批次，直到扣满 amount
func (s *SpendService) spendFree(ctx context.Context, tx *gorm.DB, req *SpendRequest, batches []*model.CreditBatch, amount int64) error {
	outstanding, err := s.batchRepo.SumOutstanding(ctx, tx, req.UserID)
	if err != nil {
		return err
	}

	left := amount
	for _, batch := range batches {
		if left == 0 {
			break
		}
		take := min(batch.RemainingAmount, left)
		if err := s.batchRepo.Decrement(ctx, tx, batch, take); err != nil {
			return err
		}

		desc := req.Description
		if req.RelatedID != "" {
			desc = fmt.Sprintf("%s [%s]", req.Description, req.RelatedID)
		}
		if _, err := s.entries.write(ctx, tx, req.UserID, model.BalanceTypeFree, model.OpTypeSpend,
			-take, outstanding, strconv.FormatInt(batch.ID, 10), desc); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		outstanding -= take
		left -= take
	}

	if left > 0 {
		return ErrInsufficientBalance
	}
	return nil
}
