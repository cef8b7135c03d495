package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"coinledger/internal/model"
	"coinledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBalance_UnknownUserIsZero(t *testing.T) {
	f := newFixture(t)

	balance, err := f.svc.Account.GetBalance(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Total)
	assert.True(t, balance.Cash.IsZero())
	// 纯读操作不创建账户
	assert.Equal(t, int64(0), f.count(t, &model.Account{}))

	_, err = f.svc.Account.GetBalance(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetBalance_AboutToExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const user = int64(1)

	f.fund(t, user, 20)
	f.grant(t, user, 3, 2*24*time.Hour)
	f.grant(t, user, 4, 6*24*time.Hour)
	f.grant(t, user, 10, 30*24*time.Hour)

	balance, err := f.svc.Account.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance.Paid)
	assert.Equal(t, int64(17), balance.Free)
	assert.Equal(t, int64(7), balance.AboutToExpire)
	assert.Equal(t, int64(37), balance.Total)

	// 3 天后第一个批次过期，立即从余额中排除
	f.now = f.now.Add(3 * 24 * time.Hour)
	balance, err = f.svc.Account.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(14), balance.Free)
	assert.Equal(t, int64(4), balance.AboutToExpire)
}

func TestGrantFreeCredit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []*GrantRequest{
		{UserID: 0, Amount: 1, ExpireAt: f.now.Add(time.Hour)},
		{UserID: 1, Amount: 0, ExpireAt: f.now.Add(time.Hour)},
		{UserID: 1, Amount: 1, ExpireAt: f.now},
		{UserID: 1, Amount: 1, ExpireAt: f.now.Add(time.Hour), OpType: model.OpTypeSpend},
	}
	for _, req := range cases {
		_, err := f.svc.Account.GrantFreeCredit(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	assert.Equal(t, int64(0), f.count(t, &model.CreditBatch{}))
}

func TestExpireDueBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const user = int64(1)

	expiring := f.grant(t, user, 5, time.Hour)
	f.grant(t, user, 8, 48*time.Hour)
	_, err := f.svc.Spend.Spend(ctx, &SpendRequest{UserID: user, Amount: 2, AllowFree: true})
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)

	n, err := f.svc.Account.ExpireDueBatches(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var reaped model.CreditBatch
	require.NoError(t, f.db.First(&reaped, expiring.ID).Error)
	assert.True(t, reaped.IsDepleted)
	assert.Equal(t, int64(0), reaped.RemainingAmount)

	expired, _, err := f.svc.Account.ListTransactions(ctx, user, repository.LedgerFilter{OpType: model.OpTypeExpire}, 1, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(-3), expired[0].Delta)

	// 再次执行没有可回收的批次
	n, err = f.svc.Account.ExpireDueBatches(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	ok, err := f.svc.Account.ExpireBatch(ctx, expiring.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Account.ExpireBatch(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	balance, err := f.svc.Account.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(8), balance.Free)
	f.requireReconciled(t, user)
}

func TestListTransactions_OrderAndFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const user = int64(1)

	f.fund(t, user, 10)
	f.grant(t, user, 5, time.Hour)
	_, err := f.svc.Spend.Spend(ctx, &SpendRequest{UserID: user, Amount: 7, AllowFree: true})
	require.NoError(t, err)

	all, total, err := f.svc.Account.ListTransactions(ctx, user, repository.LedgerFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}

	desc, _, err := f.svc.Account.ListTransactions(ctx, user, repository.LedgerFilter{Desc: true}, 1, 2)
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, all[3].ID, desc[0].ID)

	spends, total, err := f.svc.Account.ListTransactions(ctx, user, repository.LedgerFilter{OpType: model.OpTypeSpend}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, e := range spends {
		assert.Equal(t, model.OpTypeSpend, e.OpType)
	}

	_, _, err = f.svc.Account.ListTransactions(ctx, user, repository.LedgerFilter{BalanceType: "GOLD"}, 1, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGrantFreeCredit_ReapsExpiredBatchesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const user = int64(1)

	f.grant(t, user, 5, time.Hour)
	f.now = f.now.Add(2 * time.Hour)
	f.grant(t, user, 3, 24*time.Hour)

	free := f.entries(t, user, model.BalanceTypeFree)
	require.Len(t, free, 3)
	assert.Equal(t, model.OpTypeExpire, free[1].OpType)
	assert.Equal(t, int64(-5), free[1].Delta)
	assert.Equal(t, model.OpTypeGrant, free[2].OpType)
	assert.Equal(t, int64(0), free[2].BalanceBefore)
	assert.Equal(t, int64(3), free[2].BalanceAfter)

	balance, err := f.svc.Account.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, free[2].BalanceAfter, balance.Free)
	f.requireReconciled(t, user)
}

func TestGrantFreeCredit_ConcurrentWithSpendKeepsChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const user = int64(1)

	f.grant(t, user, 20, 24*time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.Account.GrantFreeCredit(ctx, &GrantRequest{UserID: user, Amount: 2, ExpireAt: f.now.Add(time.Hour), Reason: "活动"})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.Spend.Spend(ctx, &SpendRequest{UserID: user, Amount: 1, AllowFree: true})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 每条 FREE 流水的 balance_before 都等于上一条的 balance_after
	free := f.entries(t, user, model.BalanceTypeFree)
	require.Len(t, free, 11)
	for i := 1; i < len(free); i++ {
		assert.Equal(t, free[i-1].BalanceAfter, free[i].BalanceBefore, "entry %d", free[i].ID)
	}

	balance, err := f.svc.Account.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance.Free)
	assert.Equal(t, free[len(free)-1].BalanceAfter, balance.Free)
	f.requireReconciled(t, user)
}
