package job

import (
	"context"
	"time"

	"coinledger/internal/service"

	"go.uber.org/zap"
)

// ReconcileJob 定期核对流水与余额，发现差异只报警不修复
type ReconcileJob struct {
	reconciler *service.ReconcileService
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewReconcileJob(reconciler *service.ReconcileService, interval time.Duration) *ReconcileJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReconcileJob{
		reconciler: reconciler,
		stopCh:     make(chan struct{}),
		interval:   interval,
		batchSize:  200,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	zap.L().Info("对账任务启动", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("对账任务收到停止信号，任务退出")
			return
		case <-j.stopCh:
			zap.L().Info("对账任务停止")
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

func (j *ReconcileJob) run(ctx context.Context) []service.Drift {
	drifts, err := j.reconciler.ReconcileAll(ctx, j.batchSize)
	if err != nil {
		zap.L().Warn("对账中断", zap.Error(err))
	}
	return drifts
}
