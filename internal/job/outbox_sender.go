package job

import (
	"context"
	"time"

	"coinledger/internal/config"
	"coinledger/internal/model"
	"coinledger/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MessageSender 消息投递，生产环境是 *mq.Publisher
type MessageSender interface {
	SendMessage(topic, key, event, value string) error
}

// OutboxSender 把业务事务内写入的事件投递到 Kafka，至少投递一次
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	sender     MessageSender
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, sender MessageSender, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		sender:     sender,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	zap.L().Info("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("消息发送任务收到停止信号，任务退出")
			return
		case <-s.stopCh:
			zap.L().Info("消息发送任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		zap.L().Warn("查询待发送消息失败", zap.Error(err))
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.sender.SendMessage(msg.Topic, msg.MessageKey, msg.Event, msg.Payload)

	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			zap.L().Warn("更新消息状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
		} else {
			zap.L().Debug("消息发送成功",
				zap.Int64("id", msg.ID),
				zap.String("event", msg.Event),
				zap.String("key", msg.MessageKey))
		}
		return
	}

	zap.L().Warn("消息发送失败", zap.Int64("id", msg.ID), zap.String("event", msg.Event), zap.Error(err))

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		zap.L().Warn("增加重试次数失败", zap.Int64("id", msg.ID), zap.Error(err))
	}

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			zap.L().Warn("标记消息失败状态失败", zap.Int64("id", msg.ID), zap.Error(err))
		} else {
			zap.L().Error("消息超过最大重试次数，标记为失败", zap.Int64("id", msg.ID), zap.String("event", msg.Event))
		}
	}
}
