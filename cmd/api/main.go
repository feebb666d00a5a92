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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leozw/tenant-gateway/internal/api"
	"github.com/leozw/tenant-gateway/internal/api/handlers"
	"github.com/leozw/tenant-gateway/internal/config"
	"github.com/leozw/tenant-gateway/internal/logging"
	"github.com/leozw/tenant-gateway/internal/metrics"
	"github.com/leozw/tenant-gateway/internal/queue"
	"github.com/leozw/tenant-gateway/internal/resolver"
	"github.com/leozw/tenant-gateway/internal/storage/postgres"
	"github.com/leozw/tenant-gateway/internal/storage/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Server.Mode, "api")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Migrations applied")
	}

	// Redis
	cache, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer cache.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// The admin API never serves traffic, but it owns invalidation: every
	// registry write evicts L2 and tells the gateways to drop their L1.
	bus := redis.NewInvalidationBus(cache.Client, cfg.Resolver.InvalidationChannel, logger)
	engine, err := resolver.New(cfg.Resolver, db, redis.NewDomainCache(cache.Client), logger,
		resolver.WithMetrics(collector),
		resolver.WithPublisher(bus),
	)
	if err != nil {
		logger.Fatal("Failed to create resolver", zap.Error(err))
	}

	jobs := queue.NewRedisQueue(cache.Client)

	h := handlers.NewHandler(db, engine, jobs, cfg, logger)
	health := handlers.NewHealthHandler(map[string]handlers.HealthChecker{
		"database": db,
		"redis":    cache,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewAdminRouter(cfg, h, health, collector, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return api.Serve(gctx, srv, logger) })

	logger.Info("Admin API started", zap.String("port", cfg.Server.Port))

	if err := g.Wait(); err != nil {
		logger.Error("Admin API stopped with error", zap.Error(err))
		return
	}
	logger.Info("Admin API exited")
}
