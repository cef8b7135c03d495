package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenSQLite 打开 SQLite 数据库，用于本地开发和测试
//
// SQLite 不支持行锁（FOR UPDATE 会被驱动忽略），这里把连接池限制为 1，
// 让所有事务串行执行，效果等同于可串行化隔离级别
func OpenSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	dsn := path + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), gcfg)
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}
