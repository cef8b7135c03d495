package service

import (
	"context"
	"errors"

	"coinledger/internal/model"
	"coinledger/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Drift 流水累计值与存储余额不一致的账户
type Drift struct {
	UserID      int64  `json:"user_id"`
	BalanceType string `json:"balance_type"`
	Ledger      int64  `json:"ledger"` // 流水 delta 之和
	Stored      int64  `json:"stored"` // 账户余额或未结清批次之和
}

// ReconcileService 对账：PAID 流水之和 == paid_balance，FREE 流水之和 == 未结清批次剩余之和
type ReconcileService struct {
	accountRepo *repository.AccountRepository
	batchRepo   *repository.BatchRepository
	ledgerRepo  *repository.TransactionRepository
}

func NewReconcileService(db *gorm.DB) *ReconcileService {
	return &ReconcileService{
		accountRepo: repository.NewAccountRepository(db),
		batchRepo:   repository.NewBatchRepository(db),
		ledgerRepo:  repository.NewTransactionRepository(db),
	}
}

// ReconcileUser 核对单个用户，没有差异时返回空切片
func (s *ReconcileService) ReconcileUser(ctx context.Context, userID int64) ([]Drift, error) {
	var paid int64
	account, err := s.accountRepo.GetByUserID(ctx, nil, userID)
	switch {
	case err == nil:
		paid = account.PaidBalance
	case errors.Is(err, repository.ErrAccountNotFound):
	default:
		return nil, translateError(err, "查询账户")
	}

	paidLedger, err := s.ledgerRepo.SumDelta(ctx, userID, model.BalanceTypePaid)
	if err != nil {
		return nil, translateError(err, "汇总流水")
	}
	freeLedger, err := s.ledgerRepo.SumDelta(ctx, userID, model.BalanceTypeFree)
	if err != nil {
		return nil, translateError(err, "汇总流水")
	}
	outstanding, err := s.batchRepo.SumOutstanding(ctx, nil, userID)
	if err != nil {
		return nil, translateError(err, "汇总批次")
	}

	var drifts []Drift
	if paidLedger != paid {
		drifts = append(drifts, Drift{UserID: userID, BalanceType: model.BalanceTypePaid, Ledger: paidLedger, Stored: paid})
	}
	if freeLedger != outstanding {
		drifts = append(drifts, Drift{UserID: userID, BalanceType: model.BalanceTypeFree, Ledger: freeLedger, Stored: outstanding})
	}
	return drifts, nil
}

// ReconcileAll 按 user_id 分批遍历所有账户
func (s *ReconcileService) ReconcileAll(ctx context.Context, batchSize int) ([]Drift, error) {
	if batchSize <= 0 {
		batchSize = 200
	}

	var all []Drift
	var checked int
	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		userIDs, err := s.accountRepo.ListUserIDs(ctx, after, batchSize)
		if err != nil {
			return all, translateError(err, "查询账户")
		}
		if len(userIDs) == 0 {
			break
		}

		for _, uid := range userIDs {
			drifts, err := s.ReconcileUser(ctx, uid)
			if err != nil {
				return all, err
			}
			for _, d := range drifts {
				zap.L().Error("对账不一致",
					zap.Int64("user_id", d.UserID),
					zap.String("balance_type", d.BalanceType),
					zap.Int64("ledger", d.Ledger),
					zap.Int64("stored", d.Stored))
			}
			all = append(all, drifts...)
		}
		checked += len(userIDs)
		after = userIDs[len(userIDs)-1]
	}

	zap.L().Info("对账完成", zap.Int("accounts", checked), zap.Int("drifts", len(all)))
	return all, nil
}
