package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"coinledger/internal/handler"
	"coinledger/internal/infrastructure/cache"
	"coinledger/internal/infrastructure/mq"
	"coinledger/internal/job"
	"coinledger/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and background jobs",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, flush, err := bootstrap()
	if err != nil {
		return err
	}
	defer flush()

	db, closeDB, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	publisher, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		return err
	}
	defer publisher.Close()

	svc, err := service.NewServices(db, redisClient, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs := []job.Job{
		job.NewOutboxSender(db, publisher, cfg),
		job.NewOrderTimeoutJob(svc.Order),
		job.NewBatchReaper(svc.Account, time.Duration(cfg.Business.ReaperIntervalSeconds)*time.Second),
		job.NewReconcileJob(svc.Reconcile, time.Duration(cfg.Business.ReconcileIntervalMins)*time.Minute),
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.SetupRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// 任务不随信号中断，HTTP 服务关闭后再逐个 Stop
	jobCtx := context.WithoutCancel(gctx)
	for _, j := range jobs {
		j := j
		g.Go(func() error { j.Start(jobCtx); return nil })
	}

	g.Go(func() error {
		zap.L().Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服务启动失败: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("服务关闭异常", zap.Error(err))
		}
		for _, j := range jobs {
			j.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	zap.L().Info("服务已关闭")
	return nil
}
