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
	"github.com/leozw/tenant-gateway/internal/checker"
	"github.com/leozw/tenant-gateway/internal/config"
	"github.com/leozw/tenant-gateway/internal/logging"
	"github.com/leozw/tenant-gateway/internal/metrics"
	"github.com/leozw/tenant-gateway/internal/proxy"
	"github.com/leozw/tenant-gateway/internal/resolver"
	"github.com/leozw/tenant-gateway/internal/storage/postgres"
	"github.com/leozw/tenant-gateway/internal/storage/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Server.Mode, "gateway")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Redis
	cache, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer cache.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// Resolver
	bus := redis.NewInvalidationBus(cache.Client, cfg.Resolver.InvalidationChannel, logger)
	engine, err := resolver.New(cfg.Resolver, db, redis.NewDomainCache(cache.Client), logger,
		resolver.WithMetrics(collector),
		resolver.WithPublisher(bus),
	)
	if err != nil {
		logger.Fatal("Failed to create resolver", zap.Error(err))
	}

	upstream, err := proxy.New(cfg.Gateway.UpstreamURL, logger)
	if err != nil {
		logger.Fatal("Failed to create proxy", zap.Error(err))
	}

	health := handlers.NewHealthHandler(map[string]handlers.HealthChecker{
		"database": db,
		"redis":    cache,
		"upstream": checker.NewHTTPChecker(cfg.Gateway.UpstreamURL, 5*time.Second),
	}, logger)

	gatewaySrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewGatewayRouter(cfg, engine, upstream, collector, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	opsSrv := &http.Server{
		Addr:              ":" + cfg.Server.OpsPort,
		Handler:           api.NewOpsRouter(cfg, health, collector),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return api.Serve(gctx, gatewaySrv, logger) })
	g.Go(func() error { return api.Serve(gctx, opsSrv, logger) })
	g.Go(func() error { return bus.Subscribe(gctx, engine.EvictLocal, nil) })

	if cfg.Mimir.URL != "" {
		hostname, _ := os.Hostname()
		writer := metrics.NewRemoteWriter(collector, cfg.Mimir, hostname, logger)
		g.Go(func() error { return writer.Start(gctx) })
	}

	logger.Info("Gateway started",
		zap.String("port", cfg.Server.Port),
		zap.String("ops_port", cfg.Server.OpsPort),
		zap.String("base_domain", cfg.Resolver.BaseDomain),
		zap.String("upstream", cfg.Gateway.UpstreamURL),
	)

	if err := g.Wait(); err != nil {
		logger.Error("Gateway stopped with error", zap.Error(err))
		return
	}
	logger.Info("Gateway exited")
}
