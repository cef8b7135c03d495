package job

import (
	"context"
	"time"

	"coinledger/internal/service"

	"go.uber.org/zap"
)

// OrderTimeoutJob 关闭超时未支付的充值订单（PENDING -> FAILED）
type OrderTimeoutJob struct {
	orders    *service.OrderService
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewOrderTimeoutJob(orders *service.OrderService) *OrderTimeoutJob {
	return &OrderTimeoutJob{
		orders:    orders,
		stopCh:    make(chan struct{}),
		interval:  10 * time.Second,
		batchSize: 100,
	}
}

func (j *OrderTimeoutJob) Start(ctx context.Context) {
	zap.L().Info("订单超时任务启动", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("订单超时任务收到停止信号，任务退出")
			return
		case <-j.stopCh:
			zap.L().Info("订单超时任务停止")
			return
		case <-ticker.C:
			j.closeExpiredOrders(ctx)
		}
	}
}

func (j *OrderTimeoutJob) Stop() {
	close(j.stopCh)
}

func (j *OrderTimeoutJob) closeExpiredOrders(ctx context.Context) {
	closed, err := j.orders.CloseExpiredOrders(ctx, j.batchSize)
	if err != nil {
		zap.L().Warn("关闭超时订单失败", zap.Error(err))
		return
	}
	if closed > 0 {
		zap.L().Info("本次关闭超时订单", zap.Int("count", closed))
	}
}
