// Package certificates tracks whether a verified custom domain is served with
// a usable certificate.
package certificates

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/tenant-gateway/internal/checker"
	"github.com/leozw/tenant-gateway/internal/core"
	"github.com/leozw/tenant-gateway/internal/metrics"
)

type Outcome string

const (
	OutcomeActivated   Outcome = "activated"
	OutcomeExpired     Outcome = "expired"
	OutcomeRenewed     Outcome = "renewed"
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeUnreachable Outcome = "unreachable"
	OutcomeSkipped     Outcome = "skipped"
)

type Repository interface {
	GetDomainByID(ctx context.Context, id uuid.UUID) (*core.TenantDomain, error)
	UpdateDomainState(ctx context.Context, d *core.TenantDomain) error
}

type Prober interface {
	Check(ctx context.Context, domain string) (*checker.CertificateDetails, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, domainName string)
}

type Manager struct {
	repo        Repository
	prober      Prober
	invalidator Invalidator
	clock       clock.Clock
	metrics     *metrics.Collector
	logger      *zap.Logger
}

func NewManager(repo Repository, prober Prober, invalidator Invalidator, m *metrics.Collector, logger *zap.Logger) *Manager {
	return &Manager{
		repo:        repo,
		prober:      prober,
		invalidator: invalidator,
		clock:       clock.New(),
		metrics:     m,
		logger:      logger,
	}
}

// Check probes the certificate served for the domain and moves its SSL
// status accordingly. An unreachable host leaves the status untouched.
func (m *Manager) Check(ctx context.Context, domainID uuid.UUID) (Outcome, error) {
	d, err := m.repo.GetDomainByID(ctx, domainID)
	if err != nil {
		return "", fmt.Errorf("load domain %s: %w", domainID, err)
	}

	logger := m.logger.With(
		zap.String("domain", d.DomainName),
		zap.String("ssl_status", string(d.SSLStatus)),
	)

	if d.VerificationStatus != core.VerificationVerified || d.SSLStatus == core.SSLNone {
		return OutcomeSkipped, nil
	}

	details, err := m.prober.Check(ctx, d.DomainName)
	if err != nil {
		logger.Warn("Certificate probe failed", zap.Error(err))
		m.metrics.RecordCertificateCheck(string(OutcomeUnreachable))
		return OutcomeUnreachable, nil
	}

	now := m.clock.Now()
	outcome := OutcomeUnchanged

	switch d.SSLStatus {
	case core.SSLProvisioning:
		if details.Trusted {
			if err := d.MarkSSLActive(now); err != nil {
				return "", err
			}
			outcome = OutcomeActivated
		}

	case core.SSLActive:
		if details.Expired {
			if err := d.MarkSSLExpired(now); err != nil {
				return "", err
			}
			outcome = OutcomeExpired
		}

	case core.SSLExpired:
		if details.Trusted {
			if err := d.BeginSSLProvisioning(now); err != nil {
				return "", err
			}
			if err := d.MarkSSLActive(now); err != nil {
				return "", err
			}
			outcome = OutcomeRenewed
		}
	}

	m.metrics.RecordCertificateCheck(string(outcome))
	if outcome == OutcomeUnchanged {
		return outcome, nil
	}

	if err := m.repo.UpdateDomainState(ctx, d); err != nil {
		return "", fmt.Errorf("save domain %s: %w", d.DomainName, err)
	}
	m.invalidator.Invalidate(ctx, d.DomainName)

	logger.Info("Certificate status changed",
		zap.String("outcome", string(outcome)),
		zap.Time("valid_to", details.ValidTo),
		zap.Int("days_to_expiry", details.DaysToExpiry),
	)

	return outcome, nil
}
