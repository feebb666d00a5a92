package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leozw/tenant-gateway/internal/api/middleware"
	"github.com/leozw/tenant-gateway/internal/core"
	"github.com/leozw/tenant-gateway/internal/queue"
	"github.com/leozw/tenant-gateway/internal/verification"
)

type CreateDomainRequest struct {
	DomainName string `json:"domain_name" binding:"required"`
	IsPrimary  bool   `json:"is_primary"`
}

type DomainResponse struct {
	*core.TenantDomain
	Verification *verification.Instructions `json:"verification,omitempty"`
}

func (h *Handler) domainResponse(d *core.TenantDomain) DomainResponse {
	return DomainResponse{
		TenantDomain: d,
		Verification: verification.InstructionsFor(h.verification.RecordPrefix, d),
	}
}

func (h *Handler) ListDomains(c *gin.Context) {
	tenantID, ok := paramUUID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant id"})
		return
	}

	domains, err := h.store.FindDomainsByTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("Failed to list domains", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list domains"})
		return
	}

	resp := make([]DomainResponse, 0, len(domains))
	for _, d := range domains {
		resp = append(resp, h.domainResponse(d))
	}

	c.JSON(http.StatusOK, gin.H{
		"domains": resp,
		"count":   len(resp),
	})
}

// CreateDomain registers a host for the tenant. Names under the platform base
// domain are subdomains and are live at once; anything else must be verified
// through DNS first.
func (h *Handler) CreateDomain(c *gin.Context) {
	tenantID, ok := paramUUID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant id"})
		return
	}

	var req CreateDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	tenant, err := h.store.GetTenant(ctx, tenantID)
	if err != nil {
		h.notFoundOr500(c, err, "Tenant not found", "Failed to get tenant")
		return
	}

	name := core.NormalizeDomainName(req.DomainName)
	if !core.ValidHostname(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain name"})
		return
	}

	now := h.clock.Now().UTC()
	base := h.resolver.BaseDomain

	var domain *core.TenantDomain
	switch {
	case name == base:
		c.JSON(http.StatusBadRequest, gin.H{"error": "The platform base domain cannot be registered"})
		return

	case strings.HasSuffix(name, "."+base):
		// Platform subdomains route by slug, so the label must be the tenant's own.
		if strings.TrimSuffix(name, "."+base) != tenant.Slug {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Subdomain must match the tenant slug"})
			return
		}
		domain = core.NewSubdomain(tenantID, name, now)

	default:
		if req.IsPrimary {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only verified domains can be primary"})
			return
		}
		domain, err = core.NewCustomDomain(tenantID, name, now, h.resolver.VerificationTTL)
		if err != nil {
			h.logger.Error("Failed to create verification token", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create domain"})
			return
		}
	}

	if err := h.store.CreateDomain(ctx, domain); err != nil {
		if errors.Is(err, core.ErrDomainExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Domain already registered"})
			return
		}
		h.logger.Error("Failed to create domain", zap.String("domain", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create domain"})
		return
	}

	if req.IsPrimary {
		if err := h.store.SetPrimary(ctx, tenantID, domain.ID, now); err != nil {
			h.logger.Error("Failed to set primary domain", zap.String("domain", name), zap.Error(err))
		} else {
			domain.IsPrimary = true
		}
	}

	h.invalidator.Invalidate(ctx, name)

	if domain.Kind == core.KindCustom {
		job := &queue.Job{Type: queue.JobVerifyDomain, DomainID: domain.ID, TenantID: tenantID}
		if err := h.queue.Push(ctx, job, 0); err != nil {
			// The scheduler picks pending domains up on its next pass.
			h.logger.Warn("Failed to queue verification", zap.String("domain", name), zap.Error(err))
		}
	}

	h.logger.Info("Domain registered",
		middleware.Operator(c),
		zap.String("tenant_id", tenantID.String()),
		zap.String("domain", name),
		zap.String("kind", string(domain.Kind)),
	)

	c.JSON(http.StatusCreated, h.domainResponse(domain))
}

func (h *Handler) GetDomain(c *gin.Context) {
	domain, ok := h.loadDomain(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, h.domainResponse(domain))
}

// DeleteDomain soft deletes the domain. Removing the primary promotes the
// oldest remaining verified domain.
func (h *Handler) DeleteDomain(c *gin.Context) {
	domain, ok := h.loadDomain(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	now := h.clock.Now().UTC()

	if err := h.store.SoftDeleteDomain(ctx, domain.TenantID, domain.ID, now); err != nil {
		h.notFoundOr500(c, err, "Domain not found", "Failed to delete domain")
		return
	}
	h.invalidator.Invalidate(ctx, domain.DomainName)

	resp := gin.H{"message": "Domain deleted"}
	if domain.IsPrimary {
		promoted, err := h.store.PromotePrimary(ctx, domain.TenantID, now)
		if err != nil {
			h.logger.Error("Failed to promote primary domain",
				zap.String("tenant_id", domain.TenantID.String()),
				zap.Error(err),
			)
		} else if promoted != nil {
			resp["primary_domain"] = promoted.DomainName
		}
	}

	h.logger.Info("Domain deleted",
		middleware.Operator(c),
		zap.String("tenant_id", domain.TenantID.String()),
		zap.String("domain", domain.DomainName),
	)

	c.JSON(http.StatusOK, resp)
}

// VerifyDomain queues an immediate verification attempt. A failed domain is
// re-armed with a new token first.
func (h *Handler) VerifyDomain(c *gin.Context) {
	domain, ok := h.loadDomain(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	switch domain.VerificationStatus {
	case core.VerificationVerified:
		c.JSON(http.StatusConflict, gin.H{"error": "Domain already verified"})
		return

	case core.VerificationFailed:
		if err := domain.RetryVerification(h.clock.Now().UTC(), h.resolver.VerificationTTL); err != nil {
			h.logger.Error("Failed to re-arm verification", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restart verification"})
			return
		}
		if err := h.store.UpdateDomainState(ctx, domain); err != nil {
			h.notFoundOr500(c, err, "Domain not found", "Failed to restart verification")
			return
		}
		h.invalidator.Invalidate(ctx, domain.DomainName)
	}

	job := &queue.Job{Type: queue.JobVerifyDomain, DomainID: domain.ID, TenantID: domain.TenantID}
	if err := h.queue.Push(ctx, job, queue.PriorityHigh); err != nil {
		h.logger.Error("Failed to queue verification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue verification"})
		return
	}

	h.logger.Info("Verification queued",
		middleware.Operator(c),
		zap.String("domain", domain.DomainName),
		zap.String("status", string(domain.VerificationStatus)),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Verification queued",
		"domain":  h.domainResponse(domain),
	})
}

func (h *Handler) SetPrimaryDomain(c *gin.Context) {
	domain, ok := h.loadDomain(c)
	if !ok {
		return
	}

	if domain.VerificationStatus != core.VerificationVerified {
		c.JSON(http.StatusConflict, gin.H{"error": "Only verified domains can be primary"})
		return
	}

	if err := h.store.SetPrimary(c.Request.Context(), domain.TenantID, domain.ID, h.clock.Now().UTC()); err != nil {
		h.notFoundOr500(c, err, "Domain not found", "Failed to set primary domain")
		return
	}
	domain.IsPrimary = true

	h.logger.Info("Primary domain changed",
		middleware.Operator(c),
		zap.String("tenant_id", domain.TenantID.String()),
		zap.String("domain", domain.DomainName),
	)

	c.JSON(http.StatusOK, h.domainResponse(domain))
}

func (h *Handler) loadDomain(c *gin.Context) (*core.TenantDomain, bool) {
	tenantID, ok := paramUUID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant id"})
		return nil, false
	}
	domainID, ok := paramUUID(c, "domainId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain id"})
		return nil, false
	}

	domain, err := h.store.GetDomain(c.Request.Context(), tenantID, domainID)
	if err != nil {
		h.notFoundOr500(c, err, "Domain not found", "Failed to get domain")
		return nil, false
	}
	return domain, true
}
