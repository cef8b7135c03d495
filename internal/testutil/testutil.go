// Package testutil 为各包测试提供 SQLite 数据库、miniredis 和默认配置
package testutil

import (
	"path/filepath"
	"testing"

	"coinledger/internal/config"
	"coinledger/internal/infrastructure/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 在临时目录创建一个已迁移的 SQLite 数据库
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := database.OpenSQLite(path, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewRedis 启动一个 miniredis 并返回客户端
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// NewConfig 默认配置
func NewConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	return cfg
}
