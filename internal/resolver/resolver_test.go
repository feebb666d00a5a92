package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/leozw/tenant-gateway/internal/config"
	"github.com/leozw/tenant-gateway/internal/core"
)

const (
	testBaseDomain   = "base.com"
	testCustomDomain = "shop.customer.tld"
)

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	clock  *clock.Mock
	store  *countingStore
	shared *memoryShared
	logs   *observer.ObservedLogs
	engine *Engine
	tenant core.TenantInfo
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func testConfig() config.ResolverConfig {
	return config.ResolverConfig{
		BaseDomain:  testBaseDomain,
		L1TTL:       5 * time.Minute,
		L1Size:      128,
		L2TTL:       10 * time.Minute,
		NegativeTTL: 30 * time.Second,
		KeyPrefix:   "tenant-domain:",
	}
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewMock()
	s.clock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.store = newCountingStore()
	s.shared = newMemoryShared()

	obsCore, logs := observer.New(zapcore.DebugLevel)
	s.logs = logs

	s.tenant = tenantInfo("acme")
	s.store.add(s.activeDomain(testCustomDomain, s.tenant.TenantID), s.tenant)

	s.engine = s.newEngine(s.shared, zap.New(obsCore))
}

func (s *EngineSuite) newEngine(shared SharedCache, logger *zap.Logger, opts ...Option) *Engine {
	opts = append([]Option{WithClock(s.clock)}, opts...)
	e, err := New(testConfig(), s.store, shared, logger, opts...)
	s.Require().NoError(err)
	return e
}

func tenantInfo(slug string) core.TenantInfo {
	return core.TenantInfo{
		TenantID:    core.TenantIDFromSlug(slug),
		Slug:        slug,
		DisplayName: "Tenant " + slug,
		Status:      core.TenantActive,
	}
}

func (s *EngineSuite) activeDomain(name string, tenantID uuid.UUID) *core.TenantDomain {
	d, err := core.NewCustomDomain(tenantID, name, s.clock.Now(), time.Hour)
	s.Require().NoError(err)
	s.Require().NoError(d.MarkVerified(s.clock.Now()))
	s.Require().NoError(d.BeginSSLProvisioning(s.clock.Now()))
	s.Require().NoError(d.MarkSSLActive(s.clock.Now()))
	return d
}

func (s *EngineSuite) TestSubdomainFastPath() {
	for _, label := range []string{"tenant1", "acme", "a", "x-y-z", "42"} {
		s.Run(label, func() {
			info, err := s.engine.Resolve(s.ctx, label+"."+testBaseDomain)
			s.Require().NoError(err)
			s.Equal(label, info.Slug)
			s.Equal(core.TenantIDFromSlug(label), info.TenantID)
			s.Equal(core.TenantActive, info.Status)
		})
	}
	s.Equal(int64(0), s.store.lookups.Load(), "fast path must not touch the registry")
}

func (s *EngineSuite) TestNestedSubdomainNotFound() {
	_, err := s.engine.Resolve(s.ctx, "a.b."+testBaseDomain)
	s.Require().ErrorIs(err, core.ErrNotFound)
}

func (s *EngineSuite) TestBaseDomainApexUsesRegistry() {
	_, err := s.engine.Resolve(s.ctx, testBaseDomain)
	s.Require().ErrorIs(err, core.ErrNotFound)
	s.Equal(int64(1), s.store.lookups.Load())
}

func (s *EngineSuite) TestCaseInsensitive() {
	upper, err := s.engine.Resolve(s.ctx, "TENANT1.BASE.COM")
	s.Require().NoError(err)
	lower, err := s.engine.Resolve(s.ctx, "tenant1.base.com")
	s.Require().NoError(err)
	s.Equal(lower.TenantID, upper.TenantID)

	custom, err := s.engine.Resolve(s.ctx, "  Shop.Customer.TLD:443 ")
	s.Require().NoError(err)
	s.Equal(s.tenant.TenantID, custom.TenantID)
}

func (s *EngineSuite) TestCustomDomainCachedAfterFirstLookup() {
	info, err := s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)
	s.Equal(s.tenant.TenantID, info.TenantID)
	s.Equal("acme", info.Slug)
	s.Equal(int64(1), s.store.lookups.Load())

	_, err = s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)
	s.Equal(int64(1), s.store.lookups.Load(), "second call within TTL must not hit the store")

	key := "tenant-domain:" + testCustomDomain
	s.True(s.shared.has(key))
	s.Equal(10*time.Minute, s.shared.ttl(key))
}

func (s *EngineSuite) TestInvalidateForcesStoreLookup() {
	_, err := s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)

	s.engine.Invalidate(s.ctx, "SHOP.customer.tld")
	s.False(s.shared.has("tenant-domain:" + testCustomDomain))

	_, err = s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)
	s.Equal(int64(2), s.store.lookups.Load())
}

func (s *EngineSuite) TestInvalidateDuringLookupIsNotOverwritten() {
	invalidated := false
	s.store.onLookup = func(name string) {
		if !invalidated {
			invalidated = true
			s.engine.Invalidate(s.ctx, name)
		}
	}

	// The in-flight read still answers, but must not cache what it read.
	_, err := s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)
	s.False(s.shared.has("tenant-domain:" + testCustomDomain))

	_, err = s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)
	s.Equal(int64(2), s.store.lookups.Load())
	s.True(s.shared.has("tenant-domain:" + testCustomDomain))
}

func (s *EngineSuite) TestEvictLocalDuringLookupIsNotOverwritten() {
	engine := s.newEngine(nil, zap.NewNop())
	s.store.onLookup = func(name string) { engine.EvictLocal(name) }

	_, err := engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)
	s.Equal(0, engine.local.Len())
}

func (s *EngineSuite) TestUnknownDomainNegativelyCached() {
	_, err := s.engine.Resolve(s.ctx, "unknown.example.com")
	s.Require().ErrorIs(err, core.ErrNotFound)

	_, err = s.engine.Resolve(s.ctx, "unknown.example.com")
	s.Require().ErrorIs(err, core.ErrNotFound)
	s.Equal(int64(1), s.store.lookups.Load())

	key := "tenant-domain:unknown.example.com"
	s.Require().True(s.shared.has(key), "negative marker must be written to L2")
	s.Equal(30*time.Second, s.shared.ttl(key))
}

func (s *EngineSuite) TestNegativeEntryExpires() {
	engine := s.newEngine(nil, zap.NewNop())

	_, err := engine.Resolve(s.ctx, "unknown.example.com")
	s.Require().ErrorIs(err, core.ErrNotFound)

	s.clock.Add(29 * time.Second)
	_, _ = engine.Resolve(s.ctx, "unknown.example.com")
	s.Equal(int64(1), s.store.lookups.Load())

	s.clock.Add(2 * time.Second)
	_, _ = engine.Resolve(s.ctx, "unknown.example.com")
	s.Equal(int64(2), s.store.lookups.Load())
}

func (s *EngineSuite) TestLocalExpiryFallsBackToShared() {
	_, err := s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)

	s.clock.Add(5*time.Minute + time.Second)

	info, err := s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)
	s.Equal(s.tenant.TenantID, info.TenantID)
	s.Equal(int64(1), s.store.lookups.Load(), "L2 hit must satisfy the lookup")
}

func (s *EngineSuite) TestSharedTierServesColdInstance() {
	_, err := s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)

	cold := s.newEngine(s.shared, zap.NewNop())
	info, err := cold.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)
	s.Equal(s.tenant.TenantID, info.TenantID)
	s.Equal(int64(1), s.store.lookups.Load())
}

func (s *EngineSuite) TestInactiveDomainNotFound() {
	pending, err := core.NewCustomDomain(s.tenant.TenantID, "pending.customer.tld", s.clock.Now(), time.Hour)
	s.Require().NoError(err)
	s.store.add(pending, s.tenant)

	verifiedNoCert := s.activeDomain("nocert.customer.tld", s.tenant.TenantID)
	verifiedNoCert.SSLStatus = core.SSLProvisioning
	s.store.add(verifiedNoCert, s.tenant)

	_, err = s.engine.Resolve(s.ctx, "pending.customer.tld")
	s.ErrorIs(err, core.ErrNotFound)
	_, err = s.engine.Resolve(s.ctx, "nocert.customer.tld")
	s.ErrorIs(err, core.ErrNotFound)
}

func (s *EngineSuite) TestInactiveTenantIsReturnedWithStatus() {
	suspended := tenantInfo("globex")
	suspended.Status = core.TenantInactive
	s.store.add(s.activeDomain("globex.example.org", suspended.TenantID), suspended)

	info, err := s.engine.Resolve(s.ctx, "globex.example.org")
	s.Require().NoError(err)
	s.False(info.IsActive())
}

func (s *EngineSuite) TestStoreFailurePropagates() {
	s.store.failWith(errBackendDown)

	_, err := s.engine.Resolve(s.ctx, "other.customer.tld")
	s.Require().Error(err)
	var resolverErr *core.ResolverError
	s.Require().True(errors.As(err, &resolverErr))
	s.ErrorIs(err, errBackendDown)
	s.False(errors.Is(err, core.ErrNotFound))

	s.False(s.shared.has("tenant-domain:other.customer.tld"), "failures must not be cached")

	s.store.failWith(nil)
	_, err = s.engine.Resolve(s.ctx, "other.customer.tld")
	s.ErrorIs(err, core.ErrNotFound)
	s.Equal(int64(2), s.store.lookups.Load())
}

func (s *EngineSuite) TestSharedReadFailureFallsThrough() {
	s.shared.failGet = true

	info, err := s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)
	s.Equal(s.tenant.TenantID, info.TenantID)
	s.Equal(int64(1), s.store.lookups.Load())
	s.Equal(1, s.logs.FilterMessage("Shared cache read failed, falling through to store").Len())
}

func (s *EngineSuite) TestSharedWriteFailureStillCachesLocally() {
	s.shared.failSet = true

	_, err := s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)
	_, err = s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)

	s.Equal(int64(1), s.store.lookups.Load())
	s.Equal(1, s.logs.FilterMessage("Shared cache write failed").Len())
}

func (s *EngineSuite) TestInvalidateSwallowsSharedFailure() {
	_, err := s.engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)
	s.shared.failDel = true

	s.NotPanics(func() { s.engine.Invalidate(s.ctx, testCustomDomain) })
	s.Equal(1, s.logs.FilterMessage("Shared cache invalidation failed").Len())
}

func (s *EngineSuite) TestInvalidatePublishes() {
	pub := &recordingPublisher{}
	engine := s.newEngine(s.shared, zap.NewNop(), WithPublisher(pub))

	engine.Invalidate(s.ctx, "Shop.Customer.TLD")
	s.Equal([]string{testCustomDomain}, pub.names)
}

func (s *EngineSuite) TestEvictLocal() {
	engine := s.newEngine(nil, zap.NewNop())
	_, err := engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)

	engine.EvictLocal(testCustomDomain)
	_, err = engine.Resolve(s.ctx, testCustomDomain)
	s.Require().NoError(err)
	s.Equal(int64(2), s.store.lookups.Load())
}

func (s *EngineSuite) TestInvalidateForTenant() {
	second := s.activeDomain("www.acme.example", s.tenant.TenantID)
	s.store.add(second, s.tenant)

	for _, name := range []string{testCustomDomain, "www.acme.example"} {
		_, err := s.engine.Resolve(s.ctx, name)
		s.Require().NoError(err)
	}
	s.Equal(int64(2), s.store.lookups.Load())

	s.Require().NoError(s.engine.InvalidateForTenant(s.ctx, s.tenant.TenantID))
	s.Equal(int64(1), s.store.tenantLookups.Load())

	for _, name := range []string{testCustomDomain, "www.acme.example"} {
		_, err := s.engine.Resolve(s.ctx, name)
		s.Require().NoError(err)
	}
	s.Equal(int64(4), s.store.lookups.Load())
}

func (s *EngineSuite) TestInvalidateForTenantStoreFailure() {
	s.store.failWith(errBackendDown)
	err := s.engine.InvalidateForTenant(s.ctx, s.tenant.TenantID)
	var resolverErr *core.ResolverError
	s.True(errors.As(err, &resolverErr))
}

func (s *EngineSuite) TestInvalidHostNeverReachesStore() {
	for _, host := range []string{"", "   ", "bad..host", "-x.example", "evil.example/path"} {
		_, err := s.engine.Resolve(s.ctx, host)
		s.ErrorIs(err, core.ErrNotFound)
	}
	s.Equal(int64(0), s.store.lookups.Load())
}

func (s *EngineSuite) TestCancelledLookupLeavesNoEntry() {
	s.store.delay = time.Second
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.engine.Resolve(ctx, "slow.customer.tld")
	s.Require().ErrorIs(err, context.Canceled)
	s.False(s.shared.has("tenant-domain:slow.customer.tld"))
	s.Equal(0, s.engine.local.Len())
}

func (s *EngineSuite) TestConcurrentResolutionAgrees() {
	const callers = 50
	s.store.delay = 5 * time.Millisecond

	var wg sync.WaitGroup
	results := make([]uuid.UUID, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := s.engine.Resolve(s.ctx, testCustomDomain)
			errs[i] = err
			if err == nil {
				results[i] = info.TenantID
			}
		}()
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		s.Require().NoError(errs[i])
		s.Equal(s.tenant.TenantID, results[i])
	}
	s.GreaterOrEqual(s.store.lookups.Load(), int64(1))
}
