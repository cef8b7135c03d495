package repository

import (
	"context"
	"testing"
	"time"

	"coinledger/internal/model"
	"coinledger/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepository_UpdateStatus(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	order := &model.RechargeOrder{
		OrderNo:        "RCH1",
		IdempotencyKey: "k1",
		UserID:         1,
		AmountCNY:      decimal.RequireFromString("12.50"),
		CoinsAmount:    125,
		Method:         "alipay",
		Status:         model.OrderStatusPending,
		ExpiredAt:      time.Now().Add(-time.Minute),
	}
	require.NoError(t, repo.Create(ctx, nil, order))

	expired, err := repo.GetExpiredOrders(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	paidAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, nil, "RCH1", model.OrderStatusPaid, model.OrderStatusPending, paidAt), ErrOrderStatusInvalid)
	require.NoError(t, repo.UpdateStatus(ctx, nil, "RCH1", model.OrderStatusPending, model.OrderStatusPaid, paidAt))
	// 第二次迁移条件不满足
	assert.ErrorIs(t, repo.UpdateStatus(ctx, nil, "RCH1", model.OrderStatusPending, model.OrderStatusFailed, time.Now()), ErrOrderStatusInvalid)

	stored, err := repo.GetByOrderNo(ctx, "RCH1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	assert.True(t, stored.PaidAt.Equal(paidAt))
	assert.True(t, stored.AmountCNY.Equal(decimal.RequireFromString("12.5")))

	expired, err = repo.GetExpiredOrders(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, expired)

	_, err = repo.GetByOrderNo(ctx, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
