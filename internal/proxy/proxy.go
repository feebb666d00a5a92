package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Proxy forwards tenant requests to the downstream application.
type Proxy struct {
	target  *url.URL
	reverse *httputil.ReverseProxy
	logger  *zap.Logger
}

func New(upstream string, logger *zap.Logger) (*Proxy, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, errors.New("upstream url must be absolute")
	}

	p := &Proxy{target: target, logger: logger}
	p.reverse = &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			// Keep the original host so downstream links point at the tenant's domain.
			r.Out.Host = r.In.Host
		},
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        200,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
		ErrorHandler: p.handleError,
	}
	return p, nil
}

// Handler is registered as the gateway's catch-all route, after the tenant
// middleware.
func (p *Proxy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p.reverse.ServeHTTP(c.Writer, c.Request)
		// Commit the upstream status even for an empty body. Otherwise gin's
		// NoRoute fallback treats an unwritten 404 as its own and rewrites it.
		c.Writer.WriteHeaderNow()
	}
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Error("Upstream request failed",
		zap.String("host", r.Host),
		zap.String("path", r.URL.Path),
		zap.String("upstream", p.target.Host),
		zap.Error(err),
	)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(`{"error":"Bad gateway"}`))
}
