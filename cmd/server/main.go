package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/duka/internal/adapter/feed"
	"github.com/rl1809/duka/internal/adapter/handler"
	"github.com/rl1809/duka/internal/adapter/notify"
	"github.com/rl1809/duka/internal/adapter/report"
	"github.com/rl1809/duka/internal/adapter/storage"
	"github.com/rl1809/duka/internal/config"
	"github.com/rl1809/duka/internal/core/service"
	"github.com/rl1809/duka/internal/logger"
	"github.com/rl1809/duka/internal/metrics"
)

const monitorPath = "/monitor"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("failed to load config", zap.Error(err))
	}
	if err := logger.Init(cfg.ServiceName, cfg.LogLevel); err != nil {
		logger.L().Fatal("failed to init logger", zap.Error(err))
	}
	log := logger.L()
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	dsn := cfg.DSN()
	if err := (&storage.Migrator{Driver: cfg.DBDriver, DSN: dsn}).MigrateUp(); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}
	db, err := storage.Open(ctx, cfg.DBDriver, dsn)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	log.Info("connected to database", zap.String("driver", cfg.DBDriver))

	// Redis
	redisOpt := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 100,
	}
	rdb := redis.NewClient(redisOpt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	asynqOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	queue := asynq.NewClient(asynqOpt)

	reports, err := report.Open(ctx, cfg)
	if err != nil {
		log.Fatal("failed to open report store", zap.Error(err))
	}

	// Adapters
	repo := storage.NewSQLAdapter(db)
	cache := storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)
	bus := feed.NewRedisBus(rdb)
	notifier := notify.NewAsynqNotifier(queue, log)
	m := metrics.New()

	// Services
	opts := service.Options{Logger: log, Metrics: m, Timeout: cfg.RequestTimeout}
	history := service.NewHistoryService(repo, opts)
	svc := handler.Services{
		Identity: service.NewIdentityService(repo, cache, service.IdentityConfig{
			Secret:   []byte(cfg.JWTSecret),
			TokenTTL: cfg.TokenTTL,
		}, opts),
		Directory: service.NewDirectoryService(repo, bus, opts),
		Catalog:   service.NewCatalogService(repo, bus, opts),
		Sales:     service.NewSaleService(repo, cache, notifier, bus, opts),
		History:   history,
		Feeds:     service.NewFeedService(repo, bus, opts),
		Reports:   service.NewReportService(history, reports, opts),
	}

	// gRPC server
	grpcHandler := handler.NewGRPCHandler(svc, log)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcHandler.AuthInterceptor))
	handler.RegisterSaleServiceServer(grpcServer, grpcHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP server
	router := handler.NewHTTPHandler(svc, m, log).Routes()
	var monitor *asynqmon.HTTPHandler
	if cfg.MonitorEnabled {
		monitor = asynqmon.New(asynqmon.Options{
			RootPath:     monitorPath,
			RedisConnOpt: asynqOpt,
		})
		router.Handle(monitor.RootPath()+"/*", monitor)
		log.Info("queue monitor enabled", zap.String("path", monitorPath))
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	// cancel request contexts so open feeds end
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	if monitor != nil {
		monitor.Close()
	}
	queue.Close()
	rdb.Close()
	db.Close()
	log.Info("connections closed")
}
