package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/leozw/tenant-gateway/internal/core"
)

var errBackendDown = errors.New("backend unreachable")

// countingStore is an in-memory registry that counts lookups.
type countingStore struct {
	mu      sync.RWMutex
	records map[string]*core.TenantDomainRecord
	err     error
	delay   time.Duration

	// onLookup runs inside FindByDomainName, before the registry is read.
	onLookup func(name string)

	lookups       atomic.Int64
	tenantLookups atomic.Int64
}

func newCountingStore() *countingStore {
	return &countingStore{records: make(map[string]*core.TenantDomainRecord)}
}

func (s *countingStore) add(domain *core.TenantDomain, tenant core.TenantInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[domain.DomainName] = &core.TenantDomainRecord{Domain: *domain, Tenant: tenant}
}

func (s *countingStore) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *countingStore) FindByDomainName(ctx context.Context, name string) (*core.TenantDomainRecord, error) {
	s.lookups.Add(1)
	if s.onLookup != nil {
		s.onLookup(name)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[name]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *countingStore) FindDomainsByTenant(_ context.Context, tenantID uuid.UUID) ([]*core.TenantDomain, error) {
	s.tenantLookups.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []*core.TenantDomain
	for _, rec := range s.records {
		if rec.Domain.TenantID == tenantID {
			d := rec.Domain
			out = append(out, &d)
		}
	}
	return out, nil
}

// memoryShared is a SharedCache backed by a map, with switchable failures.
type memoryShared struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet bool
	failSet bool
	failDel bool
	deletes []string
}

func newMemoryShared() *memoryShared {
	return &memoryShared{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memoryShared) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errBackendDown
	}
	v, ok := m.data[key]
	if !ok {
		return nil, core.ErrCacheMiss
	}
	return v, nil
}

func (m *memoryShared) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errBackendDown
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memoryShared) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, key)
	if m.failDel {
		return errBackendDown
	}
	delete(m.data, key)
	return nil
}

func (m *memoryShared) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *memoryShared) ttl(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

type recordingPublisher struct {
	mu    sync.Mutex
	names []string
}

func (p *recordingPublisher) PublishInvalidation(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, name)
	return nil
}
