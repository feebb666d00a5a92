package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leozw/tenant-gateway/internal/api"
	"github.com/leozw/tenant-gateway/internal/api/handlers"
	"github.com/leozw/tenant-gateway/internal/certificates"
	"github.com/leozw/tenant-gateway/internal/checker"
	"github.com/leozw/tenant-gateway/internal/config"
	"github.com/leozw/tenant-gateway/internal/logging"
	"github.com/leozw/tenant-gateway/internal/metrics"
	"github.com/leozw/tenant-gateway/internal/queue"
	"github.com/leozw/tenant-gateway/internal/resolver"
	"github.com/leozw/tenant-gateway/internal/scheduler"
	"github.com/leozw/tenant-gateway/internal/storage/postgres"
	"github.com/leozw/tenant-gateway/internal/storage/redis"
	"github.com/leozw/tenant-gateway/internal/verification"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Server.Mode, "worker")
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

	bus := redis.NewInvalidationBus(cache.Client, cfg.Resolver.InvalidationChannel, logger)
	engine, err := resolver.New(cfg.Resolver, db, redis.NewDomainCache(cache.Client), logger,
		resolver.WithMetrics(collector),
		resolver.WithPublisher(bus),
	)
	if err != nil {
		logger.Fatal("Failed to create resolver", zap.Error(err))
	}

	dnsChecker := checker.NewDNSChecker(cfg.Verification.Nameserver, cfg.Verification.QueryTimeout)
	sslChecker := checker.NewSSLChecker(cfg.Verification.CertificatePort, cfg.Verification.TLSDialTimeout)

	verifier := verification.NewService(db, dnsChecker, engine, cfg.Verification, collector, logger)
	certs := certificates.NewManager(db, sslChecker, engine, collector, logger)

	jobs := queue.NewRedisQueue(cache.Client)
	pool := scheduler.NewPool(jobs, verifier, certs, cfg.Verification.ProbesPerSecond, logger, cfg.Scheduler)

	health := handlers.NewHealthHandler(map[string]handlers.HealthChecker{
		"database": db,
		"redis":    cache,
	}, logger)
	opsSrv := &http.Server{
		Addr:              ":" + cfg.Server.OpsPort,
		Handler:           api.NewOpsRouter(cfg, health, collector),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Start(gctx) })
	g.Go(func() error { return api.Serve(gctx, opsSrv, logger) })

	logger.Info("Worker started",
		zap.Int("workers", cfg.Scheduler.WorkerCount),
		zap.Float64("probes_per_second", cfg.Verification.ProbesPerSecond),
	)

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("Worker exited")
}
