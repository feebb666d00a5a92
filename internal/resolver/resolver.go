// Package resolver maps inbound host names to tenants.
//
// Platform subdomains ({slug}.{base}) are resolved without I/O. Every other
// host goes through an in-process cache, a shared cache and finally the
// domain registry. Only active domains are ever returned as routable.
package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leozw/tenant-gateway/internal/config"
	"github.com/leozw/tenant-gateway/internal/core"
	"github.com/leozw/tenant-gateway/internal/metrics"
)

const (
	strategySubdomain  = "subdomain"
	strategyRegistered = "registered"

	invalidateConcurrency = 8
)

// DomainStore is the persistent domain registry.
type DomainStore interface {
	// FindByDomainName returns nil, nil when no domain has that name.
	FindByDomainName(ctx context.Context, name string) (*core.TenantDomainRecord, error)
	FindDomainsByTenant(ctx context.Context, tenantID uuid.UUID) ([]*core.TenantDomain, error)
}

// SharedCache is the distributed tier shared by every engine instance.
// Get returns core.ErrCacheMiss for absent keys.
type SharedCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Publisher tells other engine instances to drop a name from their L1.
type Publisher interface {
	PublishInvalidation(ctx context.Context, domainName string) error
}

type Option func(*Engine)

func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clock = clk }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

type Engine struct {
	cfg        config.ResolverConfig
	baseDomain string
	store      DomainStore
	shared     SharedCache
	publisher  Publisher
	local      *localCache
	clock      clock.Clock
	metrics    *metrics.Collector
	logger     *zap.Logger

	// epoch advances on every invalidation. A store read that overlaps one
	// is returned to its caller but never cached.
	epoch atomic.Uint64
}

// New builds an engine. shared may be nil, in which case the L2 tier is skipped.
func New(cfg config.ResolverConfig, store DomainStore, shared SharedCache, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("resolver: domain store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:        withDefaults(cfg),
		baseDomain: core.NormalizeDomainName(cfg.BaseDomain),
		store:      store,
		shared:     shared,
		clock:      clock.New(),
		logger:     logger.Named("resolver"),
	}
	for _, opt := range opts {
		opt(e)
	}

	local, err := newLocalCache(e.cfg.L1Size, e.clock)
	if err != nil {
		return nil, err
	}
	e.local = local

	return e, nil
}

func withDefaults(cfg config.ResolverConfig) config.ResolverConfig {
	if cfg.L1TTL <= 0 {
		cfg.L1TTL = 5 * time.Minute
	}
	if cfg.L2TTL <= 0 {
		cfg.L2TTL = 10 * time.Minute
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = 30 * time.Second
	}
	if cfg.CacheWriteTimeout <= 0 {
		cfg.CacheWriteTimeout = 500 * time.Millisecond
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "tenant-domain:"
	}
	return cfg
}

// Resolve returns the tenant a host belongs to. It returns core.ErrNotFound
// when the host is not routable and a *core.ResolverError when the registry
// could not be consulted.
func (e *Engine) Resolve(ctx context.Context, host string) (*core.TenantInfo, error) {
	start := e.clock.Now()
	name := core.NormalizeDomainName(host)

	if !core.ValidHostname(name) {
		e.metrics.RecordResolution(strategyRegistered, "invalid_host", e.clock.Since(start))
		return nil, core.ErrNotFound
	}

	if label, ok := matchSubdomain(name, e.baseDomain); ok {
		e.metrics.RecordResolution(strategySubdomain, "found", e.clock.Since(start))
		return subdomainTenant(label), nil
	}

	info, err := e.resolveRegistered(ctx, name)
	e.metrics.RecordResolution(strategyRegistered, outcome(err), e.clock.Since(start))
	return info, err
}

func (e *Engine) resolveRegistered(ctx context.Context, name string) (*core.TenantInfo, error) {
	if ent, ok := e.local.Get(name); ok {
		e.metrics.RecordCacheLookup("l1", "hit")
		return ent.result()
	}
	e.metrics.RecordCacheLookup("l1", "miss")

	if ent, ok := e.readShared(ctx, name); ok {
		e.local.Set(name, ent, e.localTTL(ent))
		return ent.result()
	}

	epoch := e.epoch.Load()
	rec, err := e.store.FindByDomainName(ctx, name)
	if err != nil {
		// Nothing is cached for a failed or cancelled lookup.
		e.metrics.RecordStoreError()
		return nil, &core.ResolverError{Op: "find domain " + name, Err: err}
	}

	ent := negativeEntry()
	if rec != nil && rec.Domain.IsActive() {
		ent = positiveEntry(rec.Tenant)
	}

	e.populate(ctx, name, ent, epoch)
	return ent.result()
}

func (e *Engine) readShared(ctx context.Context, name string) (entry, bool) {
	if e.shared == nil {
		return entry{}, false
	}

	data, err := e.shared.Get(ctx, e.sharedKey(name))
	if err != nil {
		if errors.Is(err, core.ErrCacheMiss) {
			e.metrics.RecordCacheLookup("l2", "miss")
		} else {
			e.metrics.RecordCacheLookup("l2", "error")
			e.logger.Warn("Shared cache read failed, falling through to store",
				zap.String("domain", name), zap.Error(err))
		}
		return entry{}, false
	}

	ent, err := decodeEntry(data)
	if err != nil {
		e.metrics.RecordCacheLookup("l2", "error")
		e.logger.Warn("Discarding undecodable shared cache entry",
			zap.String("domain", name), zap.Error(err))
		return entry{}, false
	}

	e.metrics.RecordCacheLookup("l2", "hit")
	return ent, true
}

// populate writes L2 then L1, unless an invalidation ran since epoch was
// read. The shared write runs on a context detached from the request so a
// disconnecting client cannot abort it halfway.
func (e *Engine) populate(ctx context.Context, name string, ent entry, epoch uint64) {
	if e.epoch.Load() != epoch {
		e.logger.Debug("Skipping cache fill after concurrent invalidation", zap.String("domain", name))
		return
	}
	if e.shared != nil {
		data, err := encodeEntry(ent)
		if err == nil {
			writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CacheWriteTimeout)
			err = e.shared.Set(writeCtx, e.sharedKey(name), data, e.sharedTTL(ent))
			cancel()
		}
		if err != nil {
			e.logger.Warn("Shared cache write failed",
				zap.String("domain", name), zap.Error(err))
		}
	}
	e.local.Set(name, ent, e.localTTL(ent))
}

// Invalidate drops a domain from both tiers and asks other instances to do the
// same. Shared-tier failures are logged and swallowed.
func (e *Engine) Invalidate(ctx context.Context, domainName string) {
	name := core.NormalizeDomainName(domainName)
	if name == "" {
		return
	}

	e.epoch.Add(1)
	e.local.Remove(name)
	e.metrics.RecordInvalidation("l1", "ok")

	if e.shared != nil {
		if err := e.shared.Delete(ctx, e.sharedKey(name)); err != nil {
			e.metrics.RecordInvalidation("l2", "error")
			e.logger.Warn("Shared cache invalidation failed",
				zap.String("domain", name), zap.Error(err))
		} else {
			e.metrics.RecordInvalidation("l2", "ok")
		}
	}

	if e.publisher != nil {
		if err := e.publisher.PublishInvalidation(ctx, name); err != nil {
			e.logger.Warn("Invalidation broadcast failed",
				zap.String("domain", name), zap.Error(err))
		}
	}
}

// InvalidateForTenant invalidates every domain the tenant owns. It is called
// whenever a tenant's status changes.
func (e *Engine) InvalidateForTenant(ctx context.Context, tenantID uuid.UUID) error {
	domains, err := e.store.FindDomainsByTenant(ctx, tenantID)
	if err != nil {
		return &core.ResolverError{Op: "find domains for tenant " + tenantID.String(), Err: err}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(invalidateConcurrency)
	for _, d := range domains {
		name := d.DomainName
		g.Go(func() error {
			e.Invalidate(gctx, name)
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Info("Invalidated tenant domains",
		zap.String("tenant_id", tenantID.String()), zap.Int("count", len(domains)))
	return nil
}

// EvictLocal drops a name from this instance's L1 only. It is driven by
// invalidation broadcasts from other instances.
func (e *Engine) EvictLocal(domainName string) {
	e.epoch.Add(1)
	e.local.Remove(core.NormalizeDomainName(domainName))
}

func (e *Engine) sharedKey(name string) string {
	return e.cfg.KeyPrefix + name
}

func (e *Engine) localTTL(ent entry) time.Duration {
	if ent.Found {
		return e.cfg.L1TTL
	}
	return e.cfg.NegativeTTL
}

func (e *Engine) sharedTTL(ent entry) time.Duration {
	if ent.Found {
		return e.cfg.L2TTL
	}
	return e.cfg.NegativeTTL
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
