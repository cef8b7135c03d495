package service

import (
	"context"
	"testing"
	"time"

	"coinledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckIn_OncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const user = int64(5)

	result, err := f.svc.Checkin.CheckIn(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", result.Record.CheckinDate)
	assert.Equal(t, f.cfg.Ledger.CheckinReward, result.Batch.AmountGranted)
	assert.True(t, result.Batch.ExpireAt.Equal(f.now.AddDate(0, 0, f.cfg.Ledger.CheckinExpireDays)))

	_, err = f.svc.Checkin.CheckIn(ctx, user)
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
	assert.ErrorIs(t, err, ErrConflict)

	balance, err := f.svc.Account.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, f.cfg.Ledger.CheckinReward, balance.Free)

	free := f.entries(t, user, model.BalanceTypeFree)
	require.Len(t, free, 1)
	assert.Equal(t, model.OpTypeCheckin, free[0].OpType)

	profile, err := f.svc.Checkin.profileRepo.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, f.cfg.Ledger.CheckinExperience, profile.Experience)

	f.now = f.now.Add(24 * time.Hour)
	_, err = f.svc.Checkin.CheckIn(ctx, user)
	require.NoError(t, err)

	balance, err = f.svc.Account.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 2*f.cfg.Ledger.CheckinReward, balance.Free)
	f.requireReconciled(t, user)
}

func TestCheckIn_LockHeldByAnotherRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mr.Set("ledger:lock:checkin:6:2024-03-01", "other"))

	_, err := f.svc.Checkin.CheckIn(ctx, 6)
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
	assert.Equal(t, int64(0), f.count(t, &model.CheckinRecord{}))
}
