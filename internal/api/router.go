package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leozw/tenant-gateway/internal/api/handlers"
	"github.com/leozw/tenant-gateway/internal/api/middleware"
	"github.com/leozw/tenant-gateway/internal/config"
	"github.com/leozw/tenant-gateway/internal/metrics"
	"github.com/leozw/tenant-gateway/internal/proxy"
)

// NewAdminRouter builds the admin API: tenant and domain management behind
// bearer auth, plus health and metrics.
func NewAdminRouter(cfg *config.Config, h *handlers.Handler, health *handlers.HealthHandler, m *metrics.Collector, logger *zap.Logger) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	registerOps(router, health, m)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthRequired(cfg.Auth.JWTSecret))
	{
		api.POST("/tenants", h.CreateTenant)
		api.GET("/tenants/:id", h.GetTenant)
		api.PATCH("/tenants/:id/status", h.UpdateTenantStatus)

		api.GET("/tenants/:id/domains", h.ListDomains)
		api.POST("/tenants/:id/domains", h.CreateDomain)
		api.GET("/tenants/:id/domains/:domainId", h.GetDomain)
		api.DELETE("/tenants/:id/domains/:domainId", h.DeleteDomain)
		api.POST("/tenants/:id/domains/:domainId/verify", h.VerifyDomain)
		api.POST("/tenants/:id/domains/:domainId/primary", h.SetPrimaryDomain)
	}

	return router
}

// NewGatewayRouter builds the edge: every request is resolved to a tenant and
// proxied downstream. It has no routes of its own.
func NewGatewayRouter(cfg *config.Config, resolver middleware.TenantResolver, p *proxy.Proxy, m *metrics.Collector, logger *zap.Logger) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	if cfg.Gateway.StripClientTenantHeader {
		router.Use(middleware.StripHeader(cfg.Gateway.TenantHeader))
	}
	router.Use(middleware.ResolveTenant(resolver, cfg.Gateway.TenantHeader, m, logger))

	router.NoRoute(p.Handler())

	return router
}

// NewOpsRouter serves health and metrics on the gateway's internal listener.
func NewOpsRouter(cfg *config.Config, health *handlers.HealthHandler, m *metrics.Collector) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerOps(router, health, m)
	return router
}

func registerOps(router *gin.Engine, health *handlers.HealthHandler, m *metrics.Collector) {
	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{})))
}
