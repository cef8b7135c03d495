package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"coinledger/internal/config"
	"coinledger/internal/infrastructure/lock"
	"coinledger/internal/model"
	"coinledger/internal/repository"
	"coinledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TransferService 付费硬币在两个账户之间转移（打赏、礼物、悬赏）
// 免费硬币不可转让，转账只动付费余额
type TransferService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cfg          *config.Config
	accountRepo  *repository.AccountRepository
	transferRepo *repository.TransferRepository
	entries      entryWriter
}

func NewTransferService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *TransferService {
	return &TransferService{
		db:           db,
		redisClient:  redisClient,
		cfg:          cfg,
		accountRepo:  repository.NewAccountRepository(db),
		transferRepo: repository.NewTransferRepository(db),
		entries:      entryWriter{transactionRepo: repository.NewTransactionRepository(db)},
	}
}

type TransferRequest struct {
	FromUserID     int64
	ToUserID       int64
	Amount         int64
	OpType         string // 默认 transfer
	Description    string
	IdempotencyKey string // 为空时视为一次性请求，不可重试
}

type TransferResult struct {
	TransferNo  string `json:"transfer_no"`
	FromBalance int64  `json:"from_balance"`
	ToBalance   int64  `json:"to_balance"`
	Replayed    bool   `json:"replayed"` // true 表示命中幂等键，返回的是首次执行的结果
}

var transferOpTypes = map[string]bool{
	model.OpTypeTransfer:     true,
	model.OpTypeBountyReward: true,
	model.OpTypeRefund:       true,
}

func (req *TransferRequest) validate() error {
	if req.FromUserID <= 0 || req.ToUserID <= 0 {
		return invalidf("user_id 不合法")
	}
	if req.FromUserID == req.ToUserID {
		return ErrSelfTransfer
	}
	if req.Amount <= 0 {
		return ErrNonPositiveAmount
	}
	if req.OpType == "" {
		req.OpType = model.OpTypeTransfer
	}
	if !transferOpTypes[req.OpType] {
		return invalidf("op_type 不合法: %s", req.OpType)
	}
	if len(req.IdempotencyKey) > 128 {
		return invalidf("幂等键过长")
	}
	return nil
}

// Transfer 转账
//
// 【关键点】
// 1. 幂等：相同幂等键只执行一次，重复请求返回首次的结果
// 2. 原子：付款方扣减、收款方增加、两条流水、转账记录在同一个事务内
// 3. 并发：Redis 锁按付款方排队，事务内按 user_id 升序加行锁，避免死锁
func (s *TransferService) Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	// 幂等校验
	if req.IdempotencyKey != "" {
		if result, err := s.replay(ctx, nil, req); result != nil || err != nil {
			return result, err
		}
	}

	transferLock := lock.NewAccountLock(s.redisClient, req.FromUserID, uuid.NewString())
	if err := transferLock.Lock(ctx, 50*time.Millisecond, 60); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer transferLock.Unlock(context.WithoutCancel(ctx))

	var result *TransferResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.transferTx(ctx, tx, req)
		return err
	})
	if err != nil {
		// 同一幂等键的并发请求在写转账记录时冲突，以先提交的结果为准
		if req.IdempotencyKey != "" && repository.IsDuplicateKey(err) {
			if replayed, rerr := s.replay(ctx, nil, req); replayed != nil || rerr != nil {
				return replayed, rerr
			}
		}
		return nil, translateError(err, "转账")
	}

	if !result.Replayed {
		zap.L().Info("转账成功",
			zap.String("transfer_no", result.TransferNo),
			zap.Int64("from", req.FromUserID),
			zap.Int64("to", req.ToUserID),
			zap.Int64("amount", req.Amount),
			zap.String("op_type", req.OpType))
	}
	return result, nil
}

// replay 查询幂等键对应的转账记录；参数不一致视为冲突
func (s *TransferService) replay(ctx context.Context, tx *gorm.DB, req *TransferRequest) (*TransferResult, error) {
	record, err := s.transferRepo.GetByIdempotencyKey(ctx, tx, req.IdempotencyKey)
	if err != nil {
		return nil, translateError(err, "查询转账记录")
	}
	if record == nil {
		return nil, nil
	}
	if record.FromUserID != req.FromUserID || record.ToUserID != req.ToUserID || record.Amount != req.Amount {
		return nil, fmt.Errorf("%w: 幂等键 %s 已用于另一笔转账", ErrConflict, req.IdempotencyKey)
	}
	return &TransferResult{
		TransferNo:  record.TransferNo,
		FromBalance: record.FromBalanceAfter,
		ToBalance:   record.ToBalanceAfter,
		Replayed:    true,
	}, nil
}

// transferTx 在调用方的事务内完成转账，采纳悬赏复用它与悬赏状态一起提交
func (s *TransferService) transferTx(ctx context.Context, tx *gorm.DB, req *TransferRequest) (*TransferResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if result, err := s.replay(ctx, tx, req); result != nil || err != nil {
			return result, err
		}
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, tx, req.ToUserID); err != nil {
		return nil, fmt.Errorf("创建收款账户失败: %w", err)
	}

	// 按 user_id 升序加锁
	ids := []int64{req.FromUserID, req.ToUserID}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	accounts := make(map[int64]*model.Account, 2)
	for _, id := range ids {
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		accounts[id] = account
	}

	from, to := accounts[req.FromUserID], accounts[req.ToUserID]
	if from.PaidBalance < req.Amount {
		return nil, ErrInsufficientBalance
	}

	if err := s.accountRepo.Deduct(ctx, tx, from.UserID, req.Amount, from.Version); err != nil {
		return nil, err
	}
	if err := s.accountRepo.Increase(ctx, tx, to.UserID, req.Amount); err != nil {
		return nil, err
	}

	transferNo := idgen.GenerateTransferNo()
	if _, err := s.entries.write(ctx, tx, from.UserID, model.BalanceTypePaid, req.OpType,
		-req.Amount, from.PaidBalance, transferNo, req.Description); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}
	if _, err := s.entries.write(ctx, tx, to.UserID, model.BalanceTypePaid, req.OpType,
		req.Amount, to.PaidBalance, transferNo, req.Description); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = transferNo
	}
	record := &model.TransferRecord{
		IdempotencyKey:   key,
		TransferNo:       transferNo,
		FromUserID:       from.UserID,
		ToUserID:         to.UserID,
		Amount:           req.Amount,
		OpType:           req.OpType,
		FromBalanceAfter: from.PaidBalance - req.Amount,
		ToBalanceAfter:   to.PaidBalance + req.Amount,
	}
	if err := s.transferRepo.Create(ctx, tx, record); err != nil {
		return nil, err
	}

	return &TransferResult{
		TransferNo:  transferNo,
		FromBalance: record.FromBalanceAfter,
		ToBalance:   record.ToBalanceAfter,
	}, nil
}
