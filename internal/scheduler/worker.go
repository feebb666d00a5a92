package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leozw/tenant-gateway/internal/certificates"
	"github.com/leozw/tenant-gateway/internal/config"
	"github.com/leozw/tenant-gateway/internal/queue"
	"github.com/leozw/tenant-gateway/internal/verification"
)

const popTimeout = 5 * time.Second

type Verifier interface {
	Verify(ctx context.Context, domainID uuid.UUID) (verification.Outcome, error)
}

type CertificateChecker interface {
	Check(ctx context.Context, domainID uuid.UUID) (certificates.Outcome, error)
}

// Pool runs workers that drain the job queue. Outbound probes from all
// workers share one rate limiter.
type Pool struct {
	queue    JobQueue
	verifier Verifier
	certs    CertificateChecker
	limiter  *rate.Limiter
	logger   *zap.Logger
	config   config.SchedulerConfig
}

func NewPool(q JobQueue, verifier Verifier, certs CertificateChecker, probesPerSecond float64, logger *zap.Logger, cfg config.SchedulerConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	limit := rate.Inf
	if probesPerSecond > 0 {
		limit = rate.Limit(probesPerSecond)
	}
	return &Pool{
		queue:    q,
		verifier: verifier,
		certs:    certs,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
		config:   cfg,
	}
}

func (p *Pool) Start(ctx context.Context) error {
	p.logger.Info("Starting workers", zap.Int("worker_count", p.config.WorkerCount))

	var wg sync.WaitGroup
	for i := 0; i < p.config.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.run(ctx, p.logger.With(zap.Int("worker_id", id)))
		}(i)
	}

	wg.Wait()
	p.logger.Info("Workers stopped")
	return nil
}

func (p *Pool) run(ctx context.Context, logger *zap.Logger) {
	logger.Info("Worker started")

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Pop(ctx, popTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrTimeout) || ctx.Err() != nil {
				continue
			}
			logger.Error("Failed to pop job", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		if err := p.limiter.Wait(ctx); err != nil {
			// Shutting down; put the job back for the next run.
			if pushErr := p.queue.Push(context.WithoutCancel(ctx), job, queue.PriorityHigh); pushErr != nil {
				logger.Warn("Failed to requeue job", zap.Error(pushErr))
			}
			return
		}

		p.Process(ctx, logger, job)
	}
}

// Process dispatches a single job.
func (p *Pool) Process(ctx context.Context, logger *zap.Logger, job *queue.Job) {
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	logger = logger.With(
		zap.String("job_type", job.Type),
		zap.String("domain_id", job.DomainID.String()),
	)

	var (
		outcome string
		err     error
	)
	switch job.Type {
	case queue.JobVerifyDomain:
		var o verification.Outcome
		o, err = p.verifier.Verify(jobCtx, job.DomainID)
		outcome = string(o)
	case queue.JobCheckCertificate:
		var o certificates.Outcome
		o, err = p.certs.Check(jobCtx, job.DomainID)
		outcome = string(o)
	default:
		logger.Error("Unknown job type")
		return
	}

	if err != nil {
		logger.Error("Job failed", zap.Error(err))
		return
	}

	logger.Debug("Job completed",
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)),
	)
}
