// Package verification proves ownership of custom domains through a DNS TXT
// record holding the domain's verification token.
package verification

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/tenant-gateway/internal/config"
	"github.com/leozw/tenant-gateway/internal/core"
	"github.com/leozw/tenant-gateway/internal/metrics"
)

type Outcome string

const (
	OutcomeVerified Outcome = "verified"
	OutcomeMismatch Outcome = "mismatch"
	OutcomeExpired  Outcome = "expired"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

type Repository interface {
	GetDomainByID(ctx context.Context, id uuid.UUID) (*core.TenantDomain, error)
	UpdateDomainState(ctx context.Context, d *core.TenantDomain) error
}

type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, domainName string)
}

// Instructions tell the domain owner which record to publish.
type Instructions struct {
	RecordType  string `json:"record_type"`
	RecordName  string `json:"record_name"`
	RecordValue string `json:"record_value"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

func RecordName(prefix, domainName string) string {
	return prefix + "." + domainName
}

// InstructionsFor returns nil unless d is waiting for verification.
func InstructionsFor(prefix string, d *core.TenantDomain) *Instructions {
	if d.VerificationStatus != core.VerificationPending || d.VerificationToken == nil {
		return nil
	}
	in := &Instructions{
		RecordType:  "TXT",
		RecordName:  RecordName(prefix, d.DomainName),
		RecordValue: *d.VerificationToken,
	}
	if d.VerificationExpiresAt != nil {
		in.ExpiresAt = d.VerificationExpiresAt.UTC().Format(time.RFC3339)
	}
	return in
}

type Service struct {
	repo        Repository
	dns         TXTResolver
	invalidator Invalidator
	cfg         config.VerificationConfig
	clock       clock.Clock
	metrics     *metrics.Collector
	logger      *zap.Logger
}

func NewService(repo Repository, dns TXTResolver, invalidator Invalidator, cfg config.VerificationConfig, m *metrics.Collector, logger *zap.Logger) *Service {
	if cfg.RecordPrefix == "" {
		cfg.RecordPrefix = "_tenant-verify"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Service{
		repo:        repo,
		dns:         dns,
		invalidator: invalidator,
		cfg:         cfg,
		clock:       clock.New(),
		metrics:     m,
		logger:      logger,
	}
}

// Verify runs one verification attempt for the domain.
func (s *Service) Verify(ctx context.Context, domainID uuid.UUID) (Outcome, error) {
	d, err := s.repo.GetDomainByID(ctx, domainID)
	if err != nil {
		return "", fmt.Errorf("load domain %s: %w", domainID, err)
	}

	logger := s.logger.With(
		zap.String("domain", d.DomainName),
		zap.String("tenant_id", d.TenantID.String()),
	)

	if d.VerificationStatus != core.VerificationPending {
		logger.Debug("Domain not pending, skipping verification",
			zap.String("status", string(d.VerificationStatus)),
		)
		return OutcomeSkipped, nil
	}

	now := s.clock.Now()
	if err := d.IncrementAttempt(now); err != nil {
		return "", err
	}

	outcome := OutcomeMismatch
	switch {
	case d.TokenExpired(now):
		if err := d.MarkVerificationFailed(now); err != nil {
			return "", err
		}
		outcome = OutcomeExpired

	case s.tokenPublished(ctx, d, logger):
		if err := d.MarkVerified(now); err != nil {
			return "", err
		}
		if err := d.BeginSSLProvisioning(now); err != nil {
			return "", err
		}
		outcome = OutcomeVerified

	case d.VerificationAttempts >= s.cfg.MaxAttempts:
		if err := d.MarkVerificationFailed(now); err != nil {
			return "", err
		}
		outcome = OutcomeFailed
	}

	if err := s.repo.UpdateDomainState(ctx, d); err != nil {
		return "", fmt.Errorf("save domain %s: %w", d.DomainName, err)
	}
	s.invalidator.Invalidate(ctx, d.DomainName)
	s.metrics.RecordVerificationCheck(string(outcome))

	logger.Info("Verification attempt finished",
		zap.String("outcome", string(outcome)),
		zap.Int("attempts", d.VerificationAttempts),
	)

	return outcome, nil
}

func (s *Service) tokenPublished(ctx context.Context, d *core.TenantDomain, logger *zap.Logger) bool {
	if d.VerificationToken == nil {
		return false
	}

	name := RecordName(s.cfg.RecordPrefix, d.DomainName)
	records, err := s.dns.LookupTXT(ctx, name)
	if err != nil {
		logger.Debug("TXT lookup failed", zap.String("record", name), zap.Error(err))
		return false
	}

	return slices.Contains(records, *d.VerificationToken)
}
