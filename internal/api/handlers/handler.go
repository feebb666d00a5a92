package handlers

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/tenant-gateway/internal/config"
	"github.com/leozw/tenant-gateway/internal/core"
	"github.com/leozw/tenant-gateway/internal/queue"
)

// Store is the registry as seen by the admin API.
type Store interface {
	CreateTenantWithDomain(ctx context.Context, tenant *core.Tenant, primary *core.TenantDomain) error
	GetTenant(ctx context.Context, id uuid.UUID) (*core.Tenant, error)
	UpdateTenantStatus(ctx context.Context, id uuid.UUID, status core.TenantStatus, now time.Time) error

	FindDomainsByTenant(ctx context.Context, tenantID uuid.UUID) ([]*core.TenantDomain, error)
	CreateDomain(ctx context.Context, d *core.TenantDomain) error
	GetDomain(ctx context.Context, tenantID, id uuid.UUID) (*core.TenantDomain, error)
	UpdateDomainState(ctx context.Context, d *core.TenantDomain) error
	SoftDeleteDomain(ctx context.Context, tenantID, id uuid.UUID, now time.Time) error
	SetPrimary(ctx context.Context, tenantID, id uuid.UUID, now time.Time) error
	PromotePrimary(ctx context.Context, tenantID uuid.UUID, now time.Time) (*core.TenantDomain, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, domainName string)
	InvalidateForTenant(ctx context.Context, tenantID uuid.UUID) error
}

type JobQueue interface {
	Push(ctx context.Context, job *queue.Job, priority int) error
}

type Handler struct {
	store        Store
	invalidator  Invalidator
	queue        JobQueue
	resolver     config.ResolverConfig
	verification config.VerificationConfig
	clock        clock.Clock
	logger       *zap.Logger
}

func NewHandler(store Store, invalidator Invalidator, q JobQueue, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		store:        store,
		invalidator:  invalidator,
		queue:        q,
		resolver:     cfg.Resolver,
		verification: cfg.Verification,
		clock:        clock.New(),
		logger:       logger,
	}
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
