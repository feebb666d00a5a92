package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leozw/tenant-gateway/internal/certificates"
	"github.com/leozw/tenant-gateway/internal/config"
	"github.com/leozw/tenant-gateway/internal/core"
	"github.com/leozw/tenant-gateway/internal/queue"
	"github.com/leozw/tenant-gateway/internal/verification"
)

type staticLister struct {
	pending []*core.TenantDomain
	certs   []*core.TenantDomain
	err     error

	attemptedBefore time.Time
}

func (l *staticLister) ListPendingVerification(_ context.Context, attemptedBefore time.Time, _ int) ([]*core.TenantDomain, error) {
	l.attemptedBefore = attemptedBefore
	return l.pending, l.err
}

func (l *staticLister) ListCertificateChecks(context.Context, int) ([]*core.TenantDomain, error) {
	return l.certs, l.err
}

type recordingVerifier struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (v *recordingVerifier) Verify(_ context.Context, id uuid.UUID) (verification.Outcome, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ids = append(v.ids, id)
	return verification.OutcomeMismatch, v.err
}

func (v *recordingVerifier) seen() []uuid.UUID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]uuid.UUID(nil), v.ids...)
}

type recordingCerts struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (c *recordingCerts) Check(_ context.Context, id uuid.UUID) (certificates.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
	return certificates.OutcomeUnchanged, nil
}

func newQueue(t *testing.T) *queue.RedisQueue {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return queue.NewRedisQueue(client)
}

func domainFor(name string) *core.TenantDomain {
	return &core.TenantDomain{ID: uuid.New(), TenantID: uuid.New(), DomainName: name}
}

func TestScheduler_EnqueuesBothJobTypes(t *testing.T) {
	q := newQueue(t)
	pending := domainFor("pending.tld")
	active := domainFor("active.tld")

	s := NewScheduler(&staticLister{
		pending: []*core.TenantDomain{pending},
		certs:   []*core.TenantDomain{active},
	}, q, nil, zap.NewNop(), config.SchedulerConfig{})

	s.Schedule(context.Background())
	s.Schedule(context.Background())

	n, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "rescheduling must not duplicate queued jobs")

	seen := map[string]uuid.UUID{}
	for i := 0; i < 2; i++ {
		job, err := q.Pop(context.Background(), time.Second)
		require.NoError(t, err)
		seen[job.Type] = job.DomainID
	}
	assert.Equal(t, pending.ID, seen[queue.JobVerifyDomain])
	assert.Equal(t, active.ID, seen[queue.JobCheckCertificate])
}

func TestScheduler_SpacesVerificationAttempts(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	tests := []struct {
		name     string
		interval time.Duration
		want     time.Time
	}{
		{"default", 0, time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)},
		{"configured", 30 * time.Minute, time.Date(2026, 5, 1, 11, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := &staticLister{}
			s := NewScheduler(lister, newQueue(t), nil, zap.NewNop(), config.SchedulerConfig{RetryInterval: tt.interval})
			s.clock = mock

			s.Schedule(context.Background())
			assert.Equal(t, tt.want, lister.attemptedBefore)
		})
	}
}

func TestScheduler_ListErrorEnqueuesNothing(t *testing.T) {
	q := newQueue(t)
	s := NewScheduler(&staticLister{err: errors.New("db down")}, q, nil, zap.NewNop(), config.SchedulerConfig{})

	s.Schedule(context.Background())

	n, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPool_ProcessDispatchesByType(t *testing.T) {
	verifier := &recordingVerifier{}
	certs := &recordingCerts{}
	p := NewPool(nil, verifier, certs, 0, zap.NewNop(), config.SchedulerConfig{})

	verifyID, certID := uuid.New(), uuid.New()
	p.Process(context.Background(), zap.NewNop(), &queue.Job{Type: queue.JobVerifyDomain, DomainID: verifyID})
	p.Process(context.Background(), zap.NewNop(), &queue.Job{Type: queue.JobCheckCertificate, DomainID: certID})
	p.Process(context.Background(), zap.NewNop(), &queue.Job{Type: "unknown", DomainID: uuid.New()})

	assert.Equal(t, []uuid.UUID{verifyID}, verifier.seen())
	assert.Equal(t, []uuid.UUID{certID}, certs.ids)
}

func TestPool_DrainsQueue(t *testing.T) {
	q := newQueue(t)
	verifier := &recordingVerifier{}
	p := NewPool(q, verifier, &recordingCerts{}, 100, zap.NewNop(), config.SchedulerConfig{WorkerCount: 2})

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, q.Push(context.Background(), &queue.Job{Type: queue.JobVerifyDomain, DomainID: id}, 0))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(verifier.seen()) == len(ids) }, 5*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, ids, verifier.seen())

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("pool did not stop")
	}
}
