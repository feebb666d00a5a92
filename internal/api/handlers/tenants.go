package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leozw/tenant-gateway/internal/api/middleware"
	"github.com/leozw/tenant-gateway/internal/core"
)

type CreateTenantRequest struct {
	Slug        string `json:"slug" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
}

type UpdateTenantStatusRequest struct {
	Status core.TenantStatus `json:"status" binding:"required"`
}

// CreateTenant provisions a tenant together with its primary platform
// subdomain {slug}.{base domain}.
func (h *Handler) CreateTenant(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slug := core.NormalizeSlug(req.Slug)
	if !core.ValidLabel(slug) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Slug must be a valid DNS label"})
		return
	}

	now := h.clock.Now().UTC()
	tenant := &core.Tenant{
		ID:          core.TenantIDFromSlug(slug),
		Slug:        slug,
		DisplayName: req.DisplayName,
		Status:      core.TenantActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	primary := core.NewSubdomain(tenant.ID, slug+"."+h.resolver.BaseDomain, now)
	primary.IsPrimary = true

	if err := h.store.CreateTenantWithDomain(c.Request.Context(), tenant, primary); err != nil {
		if errors.Is(err, core.ErrTenantExists) || errors.Is(err, core.ErrDomainExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Tenant already exists"})
			return
		}
		h.logger.Error("Failed to create tenant", zap.String("slug", slug), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tenant"})
		return
	}

	h.invalidator.Invalidate(c.Request.Context(), primary.DomainName)

	h.logger.Info("Tenant created",
		middleware.Operator(c),
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", slug),
	)

	c.JSON(http.StatusCreated, gin.H{
		"tenant":         tenant,
		"primary_domain": primary,
	})
}

func (h *Handler) GetTenant(c *gin.Context) {
	tenantID, ok := paramUUID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant id"})
		return
	}

	tenant, err := h.store.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.notFoundOr500(c, err, "Tenant not found", "Failed to get tenant")
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// UpdateTenantStatus changes the tenant status and drops every cached
// resolution of its domains.
func (h *Handler) UpdateTenantStatus(c *gin.Context) {
	tenantID, ok := paramUUID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant id"})
		return
	}

	var req UpdateTenantStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	ctx := c.Request.Context()
	if err := h.store.UpdateTenantStatus(ctx, tenantID, req.Status, h.clock.Now().UTC()); err != nil {
		h.notFoundOr500(c, err, "Tenant not found", "Failed to update tenant")
		return
	}

	if err := h.invalidator.InvalidateForTenant(ctx, tenantID); err != nil {
		h.logger.Error("Failed to invalidate tenant domains",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	}

	h.logger.Info("Tenant status changed",
		middleware.Operator(c),
		zap.String("tenant_id", tenantID.String()),
		zap.String("status", string(req.Status)),
	)

	c.JSON(http.StatusOK, gin.H{
		"tenant_id": tenantID,
		"status":    req.Status,
	})
}

func (h *Handler) notFoundOr500(c *gin.Context, err error, notFound, failed string) {
	if errors.Is(err, core.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	h.logger.Error(failed, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": failed})
}
