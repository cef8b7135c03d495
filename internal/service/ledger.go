package service

import (
	"context"
	"time"

	"coinledger/internal/model"
	"coinledger/internal/repository"
	"coinledger/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// entryWriter 在业务事务内写流水，余额变动和流水必须使用同一个 tx
type entryWriter struct {
	transactionRepo *repository.TransactionRepository
}

func (w entryWriter) write(ctx context.Context, tx *gorm.DB, userID int64, balanceType, opType string, delta, before int64, relatedID, desc string) (*model.LedgerEntry, error) {
	entry := &model.LedgerEntry{
		EntryNo:       idgen.GenerateEntryNo(),
		UserID:        userID,
		Delta:         delta,
		BalanceType:   balanceType,
		OpType:        opType,
		RelatedID:     relatedID,
		BalanceBefore: before,
		BalanceAfter:  before + delta,
		Description:   truncate(desc, 256),
	}
	if err := w.transactionRepo.Create(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// bestEffort 执行不影响主流程的副作用（声望、经验），失败只记录日志
func bestEffort(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	if err := fn(ctx); err != nil {
		zap.L().Warn("副作用执行失败，已忽略", zap.String("action", name), zap.Error(err))
	}
}
