package service

import (
	"context"
	"sync"
	"testing"

	"coinledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggle_FlipsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active, err := f.svc.Toggle.Toggle(ctx, 1, 500, model.RelationLike)
	require.NoError(t, err)
	assert.True(t, active)

	count, err := f.svc.Toggle.Count(ctx, 500, model.RelationLike)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	active, err = f.svc.Toggle.Toggle(ctx, 1, 500, model.RelationLike)
	require.NoError(t, err)
	assert.False(t, active)

	isActive, err := f.svc.Toggle.IsActive(ctx, 1, 500, model.RelationLike)
	require.NoError(t, err)
	assert.False(t, isActive)
}

func TestToggle_KindsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, kind := range []string{model.RelationLike, model.RelationFavorite, model.RelationFollow} {
		active, err := f.svc.Toggle.Toggle(ctx, 1, 2, kind)
		require.NoError(t, err)
		assert.True(t, active, kind)
	}
	assert.Equal(t, int64(3), f.count(t, &model.RelationToggle{}))
}

func TestToggle_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Toggle.Toggle(ctx, 1, 1, model.RelationFollow)
	assert.ErrorIs(t, err, ErrSelfFollow)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// 给自己的帖子点赞是允许的，只有关注禁止自己
	active, err := f.svc.Toggle.Toggle(ctx, 1, 1, model.RelationLike)
	require.NoError(t, err)
	assert.True(t, active)

	_, err = f.svc.Toggle.Toggle(ctx, 1, 2, "poke")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Toggle.Count(ctx, 2, "poke")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestToggle_DuplicateInsertIsAbsorbed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 模拟并发：另一个请求在存在性检查之后抢先插入了同一行
	require.NoError(t, f.svc.Toggle.relationRepo.Create(ctx, 1, 9, model.RelationFavorite))

	active, err := f.svc.Toggle.activate(ctx, 1, 9, model.RelationFavorite)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, int64(1), f.count(t, &model.RelationToggle{}))
}

func TestToggle_ConcurrentNeverErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Toggle.Toggle(ctx, 3, 4, model.RelationLike)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 最终状态确定：行存在与否与 IsActive 一致，且不会出现重复行
	n := f.count(t, &model.RelationToggle{})
	assert.LessOrEqual(t, n, int64(1))
	active, err := f.svc.Toggle.IsActive(ctx, 3, 4, model.RelationLike)
	require.NoError(t, err)
	assert.Equal(t, n == 1, active)
}
