package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantInactive  TenantStatus = "inactive"
	TenantSuspended TenantStatus = "suspended"
)

func (s TenantStatus) Valid() bool {
	switch s {
	case TenantActive, TenantInactive, TenantSuspended:
		return true
	}
	return false
}

// tenantNamespace scopes deterministic tenant ids derived from slugs.
var tenantNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:tenant-gateway:tenant"))

// TenantIDFromSlug derives the stable tenant id for a slug. The subdomain fast
// path and tenant provisioning must agree on it.
func TenantIDFromSlug(slug string) uuid.UUID {
	return uuid.NewSHA1(tenantNamespace, []byte(NormalizeSlug(slug)))
}

func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

type Tenant struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	Slug        string       `json:"slug" db:"slug"`
	DisplayName string       `json:"display_name" db:"display_name"`
	Status      TenantStatus `json:"status" db:"status"`

	// Metadata
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (t *Tenant) Info() TenantInfo {
	return TenantInfo{
		TenantID:    t.ID,
		Slug:        t.Slug,
		DisplayName: t.DisplayName,
		Status:      t.Status,
	}
}

// TenantInfo is the read-only projection handed out by the resolver.
type TenantInfo struct {
	TenantID    uuid.UUID    `json:"tenant_id" db:"tenant_id"`
	Slug        string       `json:"slug" db:"slug"`
	DisplayName string       `json:"display_name" db:"display_name"`
	Status      TenantStatus `json:"status" db:"status"`
}

func (t TenantInfo) IsActive() bool {
	return t.Status == TenantActive
}
