package main

import (
	"fmt"
	"os"

	"coinledger/internal/config"
	"coinledger/internal/infrastructure/database"
	"coinledger/internal/infrastructure/logger"
	"coinledger/pkg/idgen"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	configPath string
	workerID   int64
)

// rootCmd 硬币账本服务
var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Coin ledger and bounty escrow service",
	Long: `Coin ledger service for the community platform.

Available subcommands:
  serve     - Start the HTTP API and background jobs
  migrate   - Create or update database tables
  reconcile - Compare ledger sums with stored balances once`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to config file")
	rootCmd.PersistentFlags().Int64Var(&workerID, "worker-id", 1, "snowflake worker id (0-1023), unique per instance")

	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap 加载配置、初始化日志和 ID 生成器
func bootstrap() (*config.Config, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.Init(&cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	if err := idgen.Init(workerID); err != nil {
		return nil, nil, err
	}

	return cfg, func() { _ = log.Sync() }, nil
}

func openDB(cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				zap.L().Warn("关闭数据库连接失败", zap.Error(err))
			}
		}
	}
	return db, closeFn, nil
}
