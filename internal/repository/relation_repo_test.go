package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"coinledger/internal/model"
	"coinledger/internal/testutil"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsDuplicateKey(t *testing.T) {
	assert.False(t, IsDuplicateKey(nil))
	assert.False(t, IsDuplicateKey(errors.New("boom")))
	assert.True(t, IsDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKey(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})))
	assert.False(t, IsDuplicateKey(&mysql.MySQLError{Number: 1213, Message: "Deadlock"}))
	assert.True(t, IsDuplicateKey(errors.New("UNIQUE constraint failed: relation_toggle.actor_id")))
}

func TestRelationRepository(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRelationRepository(db)
	ctx := context.Background()

	exists, err := repo.Exists(ctx, 1, 2, model.RelationLike)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.Create(ctx, 1, 2, model.RelationLike))
	require.NoError(t, repo.Create(ctx, 3, 2, model.RelationLike))

	err = repo.Create(ctx, 1, 2, model.RelationLike)
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))

	count, err := repo.CountByTarget(ctx, 2, model.RelationLike)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	deleted, err := repo.Delete(ctx, 1, 2, model.RelationLike)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = repo.Delete(ctx, 1, 2, model.RelationLike)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}
