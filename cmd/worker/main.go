package main

import (
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/adapter/notify"
	"github.com/rl1809/duka/internal/config"
	"github.com/rl1809/duka/internal/logger"
	"github.com/rl1809/duka/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("failed to load config", zap.Error(err))
	}
	if err := logger.Init(cfg.ServiceName+"-worker", cfg.LogLevel); err != nil {
		logger.L().Fatal("failed to init logger", zap.Error(err))
	}
	log := logger.L()
	defer log.Sync()

	var sender notify.Sender = notify.NewLogSender(log)
	if cfg.NotifyWebhookURL != "" {
		sender = notify.NewWebhookSender(cfg.NotifyWebhookURL)
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				notify.Queue: 1,
			},
			Logger: log.Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	notify.NewHandler(sender, metrics.New()).Register(mux)

	log.Info("worker started", zap.String("queue", notify.Queue), zap.Int("concurrency", cfg.WorkerConcurrency))
	if err := srv.Run(mux); err != nil {
		log.Fatal("could not run worker", zap.Error(err))
	}
}
