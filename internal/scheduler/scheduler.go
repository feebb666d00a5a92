package scheduler

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/leozw/tenant-gateway/internal/config"
	"github.com/leozw/tenant-gateway/internal/core"
	"github.com/leozw/tenant-gateway/internal/metrics"
	"github.com/leozw/tenant-gateway/internal/queue"
)

type DomainLister interface {
	// ListPendingVerification skips domains attempted at or after attemptedBefore.
	ListPendingVerification(ctx context.Context, attemptedBefore time.Time, limit int) ([]*core.TenantDomain, error)
	ListCertificateChecks(ctx context.Context, limit int) ([]*core.TenantDomain, error)
}

type JobQueue interface {
	Push(ctx context.Context, job *queue.Job, priority int) error
	Pop(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Length(ctx context.Context) (int64, error)
}

// Scheduler periodically enqueues lifecycle jobs for domains that need them.
type Scheduler struct {
	repo    DomainLister
	queue   JobQueue
	metrics *metrics.Collector
	logger  *zap.Logger
	config  config.SchedulerConfig
	clock   clock.Clock
}

func NewScheduler(repo DomainLister, q JobQueue, m *metrics.Collector, logger *zap.Logger, cfg config.SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 6 * time.Hour
	}
	return &Scheduler{
		repo:    repo,
		queue:   q,
		metrics: m,
		logger:  logger,
		config:  cfg,
		clock:   clock.New(),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler", zap.Duration("interval", s.config.Interval))

	ticker := s.clock.Ticker(s.config.Interval)
	defer ticker.Stop()

	s.Schedule(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping scheduler")
			return nil
		case <-ticker.C:
			s.Schedule(ctx)
		}
	}
}

// Schedule runs a single scheduling pass.
func (s *Scheduler) Schedule(ctx context.Context) {
	// Scheduled attempts are spaced by RetryInterval so MaxAttempts covers the
	// token lifetime. Operator-triggered verifications bypass this.
	cutoff := s.clock.Now().Add(-s.config.RetryInterval)
	pending, err := s.repo.ListPendingVerification(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		s.logger.Error("Failed to list domains pending verification", zap.Error(err))
	} else {
		s.enqueue(ctx, queue.JobVerifyDomain, pending)
	}

	certs, err := s.repo.ListCertificateChecks(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.Error("Failed to list domains for certificate checks", zap.Error(err))
	} else {
		s.enqueue(ctx, queue.JobCheckCertificate, certs)
	}

	if n, err := s.queue.Length(ctx); err == nil {
		s.metrics.SetQueueSize(n)
	}
}

func (s *Scheduler) enqueue(ctx context.Context, jobType string, domains []*core.TenantDomain) {
	for _, d := range domains {
		job := &queue.Job{
			Type:     jobType,
			DomainID: d.ID,
			TenantID: d.TenantID,
		}
		if err := s.queue.Push(ctx, job, 0); err != nil {
			s.logger.Error("Failed to enqueue job",
				zap.Error(err),
				zap.String("job_type", jobType),
				zap.String("domain", d.DomainName),
			)
			continue
		}
		s.logger.Debug("Scheduled job",
			zap.String("job_type", jobType),
			zap.String("domain", d.DomainName),
		)
	}
}
