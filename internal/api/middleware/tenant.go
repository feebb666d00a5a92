package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leozw/tenant-gateway/internal/core"
	"github.com/leozw/tenant-gateway/internal/metrics"
)

const (
	TenantIDKey = "tenant_id"
	TenantKey   = "tenant"
)

type TenantResolver interface {
	Resolve(ctx context.Context, host string) (*core.TenantInfo, error)
}

// ResolveTenant resolves the request host to a tenant and hands the tenant id
// downstream in header. Requests that do not resolve to an active tenant are
// answered here and never reach the next handler.
func ResolveTenant(resolver TenantResolver, header string, m *metrics.Collector, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		host := c.Request.Host

		if isLoopback(host) {
			m.RecordRequest("bypass")
			c.Next()
			return
		}

		tenant, err := resolver.Resolve(c.Request.Context(), host)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				logger.Debug("No tenant for host", zap.String("host", host))
				m.RecordRequest("not_found")
				c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
				c.Abort()
				return
			}

			logger.Error("Tenant resolution failed", zap.String("host", host), zap.Error(err))
			m.RecordRequest("error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			c.Abort()
			return
		}

		if !tenant.IsActive() {
			logger.Debug("Tenant not active",
				zap.String("host", host),
				zap.String("tenant_id", tenant.TenantID.String()),
				zap.String("status", string(tenant.Status)),
			)
			m.RecordRequest("inactive")
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			c.Abort()
			return
		}

		if c.GetHeader(header) == "" {
			c.Request.Header.Set(header, tenant.TenantID.String())
		}

		c.Set(TenantIDKey, tenant.TenantID.String())
		c.Set(TenantKey, tenant)
		m.RecordRequest("forwarded")

		c.Next()
	}
}

// StripHeader drops a client-supplied copy of header so only ResolveTenant
// can set it.
func StripHeader(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Header.Del(header)
		c.Next()
	}
}

func isLoopback(host string) bool {
	switch core.NormalizeDomainName(host) {
	case "localhost", "127.0.0.1":
		return true
	}
	return false
}
