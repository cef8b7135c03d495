package job

import "context"

// Job 后台定时任务：Start 阻塞运行，ctx 取消或 Stop 后返回
type Job interface {
	Start(ctx context.Context)
	Stop()
}

var (
	_ Job = (*OutboxSender)(nil)
	_ Job = (*OrderTimeoutJob)(nil)
	_ Job = (*BatchReaper)(nil)
	_ Job = (*ReconcileJob)(nil)
)
