package resolver

import (
	"strings"

	"github.com/leozw/tenant-gateway/internal/core"
)

// matchSubdomain returns the tenant label when name is exactly one label
// under the base domain. Nested labels (a.b.base) never match.
func matchSubdomain(name, baseDomain string) (string, bool) {
	suffix := "." + baseDomain
	if !strings.HasSuffix(name, suffix) {
		return "", false
	}
	label := strings.TrimSuffix(name, suffix)
	if label == "" || strings.Contains(label, ".") || !core.ValidLabel(label) {
		return "", false
	}
	return label, true
}

func subdomainTenant(label string) *core.TenantInfo {
	return &core.TenantInfo{
		TenantID:    core.TenantIDFromSlug(label),
		Slug:        label,
		DisplayName: label,
		Status:      core.TenantActive,
	}
}
