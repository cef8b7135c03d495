package job

import (
	"context"
	"time"

	"coinledger/internal/service"

	"go.uber.org/zap"
)

// BatchReaper 回收已过期的免费硬币批次
//
// 读余额时过期批次已经被排除，这里只负责把剩余额度清零并补一条 expire 流水，
// 让 FREE 流水累计值和未结清批次保持一致
type BatchReaper struct {
	accounts  *service.AccountService
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewBatchReaper(accounts *service.AccountService, interval time.Duration) *BatchReaper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &BatchReaper{
		accounts:  accounts,
		stopCh:    make(chan struct{}),
		interval:  interval,
		batchSize: 200,
	}
}

func (r *BatchReaper) Start(ctx context.Context) {
	zap.L().Info("批次回收任务启动", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("批次回收任务收到停止信号，任务退出")
			return
		case <-r.stopCh:
			zap.L().Info("批次回收任务停止")
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *BatchReaper) Stop() {
	close(r.stopCh)
}

// reap 一轮内循环直到没有可回收的批次
func (r *BatchReaper) reap(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := r.accounts.ExpireDueBatches(ctx, r.batchSize)
		if err != nil {
			zap.L().Warn("回收过期批次失败", zap.Error(err))
			break
		}
		total += n
		if n < r.batchSize {
			break
		}
	}
	if total > 0 {
		zap.L().Info("本次回收过期批次", zap.Int("count", total))
	}
	return total
}
