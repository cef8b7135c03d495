package database

import (
	"fmt"

	"coinledger/internal/config"
	"coinledger/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 按配置的驱动打开数据库连接并自动迁移表结构
func Open(cfg *config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch cfg.Database.Driver {
	case "mysql", "":
		db, err = OpenMySQL(&cfg.MySQL, gormConfig(cfg.Database.LogLevel))
	case "sqlite":
		db, err = OpenSQLite(cfg.SQLite.Path, gormConfig(cfg.Database.LogLevel))
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Database.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	zap.L().Info("数据库连接成功", zap.String("driver", cfg.Database.Driver))
	return db, nil
}

// Migrate 自动迁移表结构
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Account{},
		&model.UserProfile{},
		&model.CreditBatch{},
		&model.CheckinRecord{},
		&model.LedgerEntry{},
		&model.TransferRecord{},
		&model.RechargeOrder{},
		&model.EscrowSubject{},
		&model.RelationToggle{},
		&model.OutboxMessage{},
	)
	if err != nil {
		return fmt.Errorf("自动迁移表结构失败: %w", err)
	}
	return nil
}

func gormConfig(level string) *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(parseLogLevel(level)),
		// 唯一键冲突统一翻译为 gorm.ErrDuplicatedKey，点赞等幂等操作依赖它识别并发插入
		TranslateError: true,
	}
}

func parseLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
