package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"coinledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer_MovesPaidBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, 1, 100)

	result, err := f.svc.Transfer.Transfer(ctx, &TransferRequest{FromUserID: 1, ToUserID: 2, Amount: 30, Description: "打赏"})
	require.NoError(t, err)
	assert.Equal(t, int64(70), result.FromBalance)
	assert.Equal(t, int64(30), result.ToBalance)
	assert.False(t, result.Replayed)

	assert.Equal(t, int64(70), f.paid(t, 1))
	assert.Equal(t, int64(30), f.paid(t, 2))

	entries, err := f.svc.Account.ledgerRepo.ListByRelatedID(ctx, result.TransferNo)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(-30), entries[0].Delta)
	assert.Equal(t, int64(30), entries[1].Delta)
	for _, e := range entries {
		assert.Equal(t, model.BalanceTypePaid, e.BalanceType)
		assert.Equal(t, model.OpTypeTransfer, e.OpType)
	}
	f.requireReconciled(t, 1, 2)
}

func TestTransfer_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, 1, 100)
	req := func() *TransferRequest {
		return &TransferRequest{FromUserID: 1, ToUserID: 2, Amount: 40, IdempotencyKey: "gift-001"}
	}

	first, err := f.svc.Transfer.Transfer(ctx, req())
	require.NoError(t, err)
	second, err := f.svc.Transfer.Transfer(ctx, req())
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.TransferNo, second.TransferNo)
	assert.Equal(t, first.FromBalance, second.FromBalance)
	assert.Equal(t, int64(60), f.paid(t, 1))
	assert.Equal(t, int64(1), f.count(t, &model.TransferRecord{}))

	// 同一幂等键换了参数
	_, err = f.svc.Transfer.Transfer(ctx, &TransferRequest{FromUserID: 1, ToUserID: 3, Amount: 40, IdempotencyKey: "gift-001"})
	assert.ErrorIs(t, err, ErrConflict)
	f.requireReconciled(t, 1, 2)
}

func TestTransfer_ConcurrentSameKeyAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, 1, 100)

	var wg sync.WaitGroup
	results := make([]*TransferResult, 6)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.svc.Transfer.Transfer(ctx, &TransferRequest{FromUserID: 1, ToUserID: 2, Amount: 10, IdempotencyKey: "retry-key"})
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].TransferNo, r.TransferNo)
	}
	assert.Equal(t, int64(90), f.paid(t, 1))
	assert.Equal(t, int64(10), f.paid(t, 2))
}

func TestTransfer_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Transfer.Transfer(ctx, &TransferRequest{FromUserID: 1, ToUserID: 1, Amount: 1})
	assert.ErrorIs(t, err, ErrSelfTransfer)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Transfer.Transfer(ctx, &TransferRequest{FromUserID: 1, ToUserID: 2, Amount: 0})
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = f.svc.Transfer.Transfer(ctx, &TransferRequest{FromUserID: 1, ToUserID: 2, Amount: 5})
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	// 免费硬币不可转让
	f.grant(t, 1, 50, 24*time.Hour)
	_, err = f.svc.Transfer.Transfer(ctx, &TransferRequest{FromUserID: 1, ToUserID: 2, Amount: 5})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.svc.Transfer.Transfer(ctx, &TransferRequest{FromUserID: 1, ToUserID: 2, Amount: 5, OpType: model.OpTypeSpend})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, int64(0), f.count(t, &model.TransferRecord{}))
}

func TestTransfer_OppositeDirectionsDoNotDeadlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, 1, 100)
	f.fund(t, 2, 100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer.Transfer(ctx, &TransferRequest{FromUserID: 1, ToUserID: 2, Amount: 1})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer.Transfer(ctx, &TransferRequest{FromUserID: 2, ToUserID: 1, Amount: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), f.paid(t, 1))
	assert.Equal(t, int64(100), f.paid(t, 2))
	f.requireReconciled(t, 1, 2)
}
