package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"coinledger/internal/config"
	"coinledger/internal/model"
	"coinledger/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountService 余额查询、流水查询、免费硬币批次的发放与回收
type AccountService struct {
	db          *gorm.DB
	cfg         *config.Config
	accountRepo *repository.AccountRepository
	batchRepo   *repository.BatchRepository
	ledgerRepo  *repository.TransactionRepository
	outboxRepo  *repository.OutboxRepository
	entries     entryWriter
	now         func() time.Time
}

func NewAccountService(db *gorm.DB, cfg *config.Config) *AccountService {
	ledgerRepo := repository.NewTransactionRepository(db)
	return &AccountService{
		db:          db,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
		batchRepo:   repository.NewBatchRepository(db),
		ledgerRepo:  ledgerRepo,
		outboxRepo:  repository.NewOutboxRepository(db),
		entries:     entryWriter{transactionRepo: ledgerRepo},
		now:         time.Now,
	}
}

// Balance 用户余额视图
type Balance struct {
	UserID        int64           `json:"user_id"`
	Paid          int64           `json:"paid"`
	Free          int64           `json:"free"`
	AboutToExpire int64           `json:"about_to_expire"`
	Total         int64           `json:"total"`
	Cash          decimal.Decimal `json:"cash"`
}

// GetBalance 查询余额，纯读操作：账户不存在时按 0 返回，不会创建账户
//
// Free 只统计未耗尽且未过期的批次；AboutToExpire 是其中在 expire_horizon_days 内过期的部分
func (s *AccountService) GetBalance(ctx context.Context, userID int64) (*Balance, error) {
	if userID <= 0 {
		return nil, invalidf("user_id 不合法")
	}

	balance := &Balance{UserID: userID, Cash: decimal.Zero}

	account, err := s.accountRepo.GetByUserID(ctx, nil, userID)
	switch {
	case err == nil:
		balance.Paid = account.PaidBalance
		balance.Cash = account.CashBalance
	case errors.Is(err, repository.ErrAccountNotFound):
	default:
		return nil, translateError(err, "查询账户")
	}

	now := s.now()
	free, err := s.batchRepo.SumActive(ctx, nil, userID, now)
	if err != nil {
		return nil, translateError(err, "查询免费余额")
	}

	horizon := now.AddDate(0, 0, s.cfg.Ledger.ExpireHorizonDays)
	expiring, err := s.batchRepo.SumExpiring(ctx, userID, now, horizon)
	if err != nil {
		return nil, translateError(err, "查询即将过期余额")
	}

	balance.Free = free
	balance.AboutToExpire = expiring
	balance.Total = balance.Paid + balance.Free
	return balance, nil
}

// ListTransactions 分页查询流水
func (s *AccountService) ListTransactions(ctx context.Context, userID int64, filter repository.LedgerFilter, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	if userID <= 0 {
		return nil, 0, invalidf("user_id 不合法")
	}
	if filter.BalanceType != "" && filter.BalanceType != model.BalanceTypePaid && filter.BalanceType != model.BalanceTypeFree {
		return nil, 0, invalidf("balance_type 不合法: %s", filter.BalanceType)
	}
	page, pageSize = normalizePage(page, pageSize)

	entries, total, err := s.ledgerRepo.ListByUserID(ctx, userID, filter, page, pageSize)
	if err != nil {
		return nil, 0, translateError(err, "查询流水")
	}
	return entries, total, nil
}

// ListBatches 查询用户当前可用的免费硬币批次
func (s *AccountService) ListBatches(ctx context.Context, userID int64) ([]*model.CreditBatch, error) {
	if userID <= 0 {
		return nil, invalidf("user_id 不合法")
	}
	batches, err := s.batchRepo.ListByUserID(ctx, userID, s.now())
	if err != nil {
		return nil, translateError(err, "查询批次")
	}
	return batches, nil
}

// GrantRequest 发放免费硬币
type GrantRequest struct {
	UserID   int64
	Amount   int64
	ExpireAt time.Time
	Reason   string
	OpType   string // grant / checkin / refund，默认 grant
}

var grantOpTypes = map[string]bool{
	model.OpTypeGrant:   true,
	model.OpTypeCheckin: true,
	model.OpTypeRefund:  true,
}

// GrantFreeCredit 发放一个免费硬币批次，批次和 FREE 流水在同一事务内写入
func (s *AccountService) GrantFreeCredit(ctx context.Context, req *GrantRequest) (*model.CreditBatch, error) {
	var batch *model.CreditBatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = s.grantTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, translateError(err, "发放免费硬币")
	}

	zap.L().Info("发放免费硬币",
		zap.Int64("user_id", req.UserID),
		zap.Int64("batch_id", batch.ID),
		zap.Int64("amount", req.Amount),
		zap.Time("expire_at", batch.ExpireAt))
	return batch, nil
}

func (s *AccountService) grantTx(ctx context.Context, tx *gorm.DB, req *GrantRequest) (*model.CreditBatch, error) {
	if req.UserID <= 0 {
		return nil, invalidf("user_id 不合法")
	}
	if req.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	opType := req.OpType
	if opType == "" {
		opType = model.OpTypeGrant
	}
	if !grantOpTypes[opType] {
		return nil, invalidf("op_type 不合法: %s", opType)
	}
	now := s.now()
	if !req.ExpireAt.After(now) {
		return nil, invalidf("过期时间必须晚于当前时间")
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, tx, req.UserID); err != nil {
		return nil, fmt.Errorf("创建账户失败: %w", err)
	}
	// 账户行锁与消费互斥，保证 balance_before 读到的是最新值
	if _, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, req.UserID); err != nil {
		return nil, err
	}
	if err := s.reapUserTx(ctx, tx, req.UserID, now); err != nil {
		return nil, err
	}

	before, err := s.batchRepo.SumOutstanding(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	batch := &model.CreditBatch{
		UserID:          req.UserID,
		AmountGranted:   req.Amount,
		RemainingAmount: req.Amount,
		Reason:          truncate(req.Reason, 64),
		GrantedAt:       now,
		ExpireAt:        req.ExpireAt.Local(),
	}
	if err := s.batchRepo.Create(ctx, tx, batch); err != nil {
		return nil, fmt.Errorf("创建批次失败: %w", err)
	}

	relatedID := strconv.FormatInt(batch.ID, 10)
	if _, err := s.entries.write(ctx, tx, req.UserID, model.BalanceTypeFree, opType, req.Amount, before, relatedID, req.Reason); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	err = s.outboxRepo.Publish(ctx, tx, s.cfg.Kafka.Topic.LedgerEvent, relatedID, model.EventCreditGranted, map[string]interface{}{
		"user_id":   req.UserID,
		"batch_id":  batch.ID,
		"amount":    req.Amount,
		"op_type":   opType,
		"expire_at": batch.ExpireAt.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("写入消息失败: %w", err)
	}

	return batch, nil
}

// ExpireBatch 回收一个已过期的批次：剩余额度清零，写一条 FREE expire 流水
// 批次已耗尽或尚未过期时返回 false
func (s *AccountService) ExpireBatch(ctx context.Context, batchID int64) (bool, error) {
	expired := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.batchRepo.GetByID(ctx, tx, batchID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: 批次 %d", ErrNotFound, batchID)
			}
			return err
		}
		// 与消费相同的加锁顺序：先账户，后批次
		if _, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, found.UserID); err != nil {
			return err
		}
		batch, err := s.batchRepo.GetForUpdate(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if batch.IsDepleted || batch.ExpireAt.After(s.now()) {
			return nil
		}

		before, err := s.batchRepo.SumOutstanding(ctx, tx, batch.UserID)
		if err != nil {
			return err
		}
		if err := s.expireTx(ctx, tx, batch, before); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, translateError(err, "回收批次")
	}
	return expired, nil
}

// reapUserTx 在调用方事务内回收用户所有已过期批次，调用方已持有账户行锁
func (s *AccountService) reapUserTx(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) error {
	batches, err := s.batchRepo.ListExpiredByUserForUpdate(ctx, tx, userID, now)
	if err != nil || len(batches) == 0 {
		return err
	}

	before, err := s.batchRepo.SumOutstanding(ctx, tx, userID)
	if err != nil {
		return err
	}
	for _, batch := range batches {
		if err := s.expireTx(ctx, tx, batch, before); err != nil {
			return err
		}
		before -= batch.RemainingAmount
	}
	return nil
}

func (s *AccountService) expireTx(ctx context.Context, tx *gorm.DB, batch *model.CreditBatch, before int64) error {
	if err := s.batchRepo.Expire(ctx, tx, batch); err != nil {
		return err
	}

	relatedID := strconv.FormatInt(batch.ID, 10)
	desc := fmt.Sprintf("批次过期回收-%s", batch.Reason)
	if _, err := s.entries.write(ctx, tx, batch.UserID, model.BalanceTypeFree, model.OpTypeExpire, -batch.RemainingAmount, before, relatedID, desc); err != nil {
		return fmt.Errorf("记录流水失败: %w", err)
	}

	err := s.outboxRepo.Publish(ctx, tx, s.cfg.Kafka.Topic.LedgerEvent, relatedID, model.EventCreditExpired, map[string]interface{}{
		"user_id":  batch.UserID,
		"batch_id": batch.ID,
		"amount":   batch.RemainingAmount,
	})
	if err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

// ExpireDueBatches 回收最多 limit 个已过期批次，返回回收数量
func (s *AccountService) ExpireDueBatches(ctx context.Context, limit int) (int, error) {
	batches, err := s.batchRepo.ListExpired(ctx, s.now(), limit)
	if err != nil {
		return 0, translateError(err, "查询过期批次")
	}

	count := 0
	for _, batch := range batches {
		ok, err := s.ExpireBatch(ctx, batch.ID)
		if err != nil {
			zap.L().Warn("回收批次失败", zap.Int64("batch_id", batch.ID), zap.Error(err))
			continue
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
