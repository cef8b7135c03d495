package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coinledger/internal/config"
	"coinledger/internal/infrastructure/mq"
	"coinledger/internal/model"
	"coinledger/internal/repository"
	"coinledger/internal/service"
	"coinledger/internal/testutil"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"
)

type env struct {
	db  *gorm.DB
	cfg *config.Config
	svc *service.Services
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	_, rdb := testutil.NewRedis(t)
	cfg := testutil.NewConfig()
	svc, err := service.NewServices(db, rdb, cfg)
	require.NoError(t, err)
	return &env{db: db, cfg: cfg, svc: svc}
}

// runUntil 启动任务，cond 满足后取消并等待任务退出
func runUntil(t *testing.T, start func(ctx context.Context), cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		start(ctx)
	}()

	assert.Eventually(t, cond, 3*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("任务未退出")
	}
}

func TestOutboxSender_DeliversPendingMessages(t *testing.T) {
	e := newEnv(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	outbox := repository.NewOutboxRepository(e.db)
	require.NoError(t, outbox.Publish(ctx, nil, "ledger_event", "ORD1", model.EventOrderPaid, map[string]int{"coins": 10}))
	require.NoError(t, outbox.Publish(ctx, nil, "ledger_event", "7", model.EventCreditGranted, map[string]int{"amount": 5}))

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if string(msg.Headers[0].Value) != model.EventOrderPaid {
			return errors.New("unexpected event")
		}
		return nil
	})
	producer.ExpectSendMessageAndSucceed()
	publisher := mq.NewPublisher(producer)
	defer publisher.Close()

	sender := NewOutboxSender(e.db, publisher, e.cfg)
	sender.interval = 10 * time.Millisecond

	runUntil(t, sender.Start, func() bool {
		pending, err := outbox.GetPendingMessages(ctx, 10)
		return err == nil && len(pending) == 0
	})

	for _, event := range []string{model.EventOrderPaid, model.EventCreditGranted} {
		msgs, err := outbox.ListByEvent(ctx, event)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, model.OutboxStatusSent, msgs[0].Status)
	}
}

type flakySender struct {
	mu    sync.Mutex
	calls int
}

func (s *flakySender) SendMessage(topic, key, event, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return sarama.ErrOutOfBrokers
}

func TestOutboxSender_MarksFailedAfterMaxRetries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.cfg.Business.MaxRetryCount = 3

	outbox := repository.NewOutboxRepository(e.db)
	require.NoError(t, outbox.Publish(ctx, nil, "ledger_event", "k", model.EventBountyAdopted, map[string]int{}))

	flaky := &flakySender{}
	sender := NewOutboxSender(e.db, flaky, e.cfg)
	for i := 0; i < 3; i++ {
		sender.processPendingMessages(ctx)
	}

	msgs, err := outbox.ListByEvent(ctx, model.EventBountyAdopted)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.OutboxStatusFailed, msgs[0].Status)
	assert.Equal(t, 3, msgs[0].RetryCount)

	// 已失败的消息不再投递
	sender.processPendingMessages(ctx)
	assert.Equal(t, 3, flaky.calls)
}

func TestOrderTimeoutJob(t *testing.T) {
	e := newEnv(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	order, err := e.svc.Order.CreateOrder(ctx, 1, decimal.NewFromInt(1), "alipay")
	require.NoError(t, err)
	require.NoError(t, e.db.Model(&model.RechargeOrder{}).Where("id = ?", order.ID).
		Update("expired_at", time.Now().Add(-time.Minute)).Error)

	j := NewOrderTimeoutJob(e.svc.Order)
	j.interval = 10 * time.Millisecond

	runUntil(t, j.Start, func() bool {
		o, err := e.svc.Order.GetOrder(ctx, order.OrderNo)
		return err == nil && o.Status == model.OrderStatusFailed
	})
}

func TestBatchReaper(t *testing.T) {
	e := newEnv(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.svc.Account.GrantFreeCredit(ctx, &service.GrantRequest{UserID: 1, Amount: 4, ExpireAt: time.Now().Add(time.Hour)})
		require.NoError(t, err)
	}
	require.NoError(t, e.db.Model(&model.CreditBatch{}).Where("user_id = ?", 1).
		Update("expire_at", time.Now().Add(-time.Minute)).Error)

	r := NewBatchReaper(e.svc.Account, 10*time.Millisecond)
	r.batchSize = 2
	assert.Equal(t, 3, r.reap(ctx))

	drifts, err := e.svc.Reconcile.ReconcileUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	var outstanding int64
	require.NoError(t, e.db.Model(&model.CreditBatch{}).Where("is_depleted = ?", false).Count(&outstanding).Error)
	assert.Equal(t, int64(0), outstanding)

	// Stop 也能让任务退出
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Start(ctx)
	}()
	r.Stop()
	<-done
}

func TestReconcileJob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order, err := e.svc.Order.CreateOrder(ctx, 1, decimal.NewFromInt(1), "alipay")
	require.NoError(t, err)
	_, err = e.svc.Order.Confirm(ctx, order.IdempotencyKey)
	require.NoError(t, err)

	j := NewReconcileJob(e.svc.Reconcile, time.Minute)
	assert.Empty(t, j.run(ctx))

	require.NoError(t, e.db.Model(&model.Account{}).Where("user_id = ?", 1).Update("paid_balance", 1).Error)
	drifts := j.run(ctx)
	require.Len(t, drifts, 1)
	assert.Equal(t, int64(10), drifts[0].Ledger)
	assert.Equal(t, int64(1), drifts[0].Stored)
}

func TestJobs_StopEndsStart(t *testing.T) {
	e := newEnv(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	jobs := map[string]Job{
		"outbox":    NewOutboxSender(e.db, &flakySender{}, e.cfg),
		"timeout":   NewOrderTimeoutJob(e.svc.Order),
		"reaper":    NewBatchReaper(e.svc.Account, time.Hour),
		"reconcile": NewReconcileJob(e.svc.Reconcile, time.Hour),
	}
	for name, j := range jobs {
		t.Run(name, func(t *testing.T) {
			done := make(chan struct{})
			go func() {
				defer close(done)
				// 不会被取消的 ctx，只能靠 Stop 退出
				j.Start(context.Background())
			}()
			j.Stop()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("任务未退出")
			}
		})
	}
}
