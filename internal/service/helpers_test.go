package service

import (
	"context"
	"testing"
	"time"

	"coinledger/internal/config"
	"coinledger/internal/model"
	"coinledger/internal/repository"
	"coinledger/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db  *gorm.DB
	mr  *miniredis.Miniredis
	cfg *config.Config
	svc *Services
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	mr, rdb := testutil.NewRedis(t)
	cfg := testutil.NewConfig()

	svc, err := NewServices(db, rdb, cfg)
	require.NoError(t, err)

	f := &fixture{db: db, mr: mr, cfg: cfg, svc: svc, now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)}
	clock := func() time.Time { return f.now }
	svc.Account.now = clock
	svc.Spend.now = clock
	svc.Escrow.now = clock
	svc.Order.now = clock
	svc.Checkin.now = clock
	return f
}

// fund 通过充值订单给用户增加付费余额
func (f *fixture) fund(t *testing.T, userID, coins int64) {
	t.Helper()
	ctx := context.Background()

	order, err := f.svc.Order.CreateOrder(ctx, userID, decimal.New(coins, -1), "alipay")
	require.NoError(t, err)
	require.Equal(t, coins, order.CoinsAmount)

	result, err := f.svc.Order.Confirm(ctx, order.IdempotencyKey)
	require.NoError(t, err)
	require.True(t, result.Applied)
}

func (f *fixture) grant(t *testing.T, userID, amount int64, expireIn time.Duration) *model.CreditBatch {
	t.Helper()
	batch, err := f.svc.Account.GrantFreeCredit(context.Background(), &GrantRequest{
		UserID:   userID,
		Amount:   amount,
		ExpireAt: f.now.Add(expireIn),
		Reason:   "测试赠送",
	})
	require.NoError(t, err)
	return batch
}

func (f *fixture) paid(t *testing.T, userID int64) int64 {
	t.Helper()
	balance, err := f.svc.Account.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return balance.Paid
}

func (f *fixture) entries(t *testing.T, userID int64, balanceType string) []*model.LedgerEntry {
	t.Helper()
	list, _, err := f.svc.Account.ListTransactions(context.Background(), userID, repository.LedgerFilter{BalanceType: balanceType}, 1, 100)
	require.NoError(t, err)
	return list
}

// requireReconciled 流水累计值与余额一致
func (f *fixture) requireReconciled(t *testing.T, userIDs ...int64) {
	t.Helper()
	for _, uid := range userIDs {
		drifts, err := f.svc.Reconcile.ReconcileUser(context.Background(), uid)
		require.NoError(t, err)
		require.Empty(t, drifts, "user %d", uid)
	}
}

func (f *fixture) count(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(m).Count(&n).Error)
	return n
}
