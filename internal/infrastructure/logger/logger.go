package logger

import (
	"fmt"

	"coinledger/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init 根据配置创建 zap 日志并替换全局 logger，业务代码统一通过 zap.L() 记录日志
func Init(cfg *config.LogConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("日志级别不合法: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	l, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("创建日志失败: %w", err)
	}

	zap.ReplaceGlobals(l)
	return l, nil
}
