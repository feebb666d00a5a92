package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/leozw/tenant-gateway/internal/config"
	"github.com/leozw/tenant-gateway/internal/logging"
	"github.com/leozw/tenant-gateway/internal/metrics"
	"github.com/leozw/tenant-gateway/internal/queue"
	"github.com/leozw/tenant-gateway/internal/scheduler"
	"github.com/leozw/tenant-gateway/internal/storage/postgres"
	"github.com/leozw/tenant-gateway/internal/storage/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Server.Mode, "scheduler")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	cache, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer cache.Close()

	collector := metrics.NewCollector(prometheus.NewRegistry())
	jobs := queue.NewRedisQueue(cache.Client)

	sched := scheduler.NewScheduler(db, jobs, collector, logger, cfg.Scheduler)

	logger.Info("Scheduler started", zap.Duration("interval", cfg.Scheduler.Interval))

	if err := sched.Start(ctx); err != nil {
		logger.Error("Scheduler stopped with error", zap.Error(err))
		return
	}
	logger.Info("Scheduler exited")
}
