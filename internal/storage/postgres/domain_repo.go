package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leozw/tenant-gateway/internal/core"
)

const domainColumns = `
        d.id, d.tenant_id, d.domain_name, d.kind, d.is_primary,
        d.verification_status, d.verification_token, d.verification_expires_at,
        d.verification_attempts, d.last_verification_attempt_at, d.verified_at,
        d.ssl_status, d.created_at, d.updated_at, d.deleted_at`

type domainTenantRow struct {
	core.TenantDomain
	TenantSlug        string            `db:"tenant_slug"`
	TenantDisplayName string            `db:"tenant_display_name"`
	TenantStatus      core.TenantStatus `db:"tenant_status"`
}

// FindByDomainName returns the live domain with that name joined with its
// tenant, or nil, nil when there is none.
func (db *DB) FindByDomainName(ctx context.Context, name string) (*core.TenantDomainRecord, error) {
	query := `
        SELECT ` + domainColumns + `,
               t.slug AS tenant_slug, t.display_name AS tenant_display_name,
               t.status AS tenant_status
        FROM tenant_domains d
        JOIN tenants t ON t.id = d.tenant_id
        WHERE lower(d.domain_name) = lower($1) AND d.deleted_at IS NULL
    `

	var row domainTenantRow
	if err := db.GetContext(ctx, &row, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find domain %s: %w", name, err)
	}

	return &core.TenantDomainRecord{
		Domain: row.TenantDomain,
		Tenant: core.TenantInfo{
			TenantID:    row.TenantID,
			Slug:        row.TenantSlug,
			DisplayName: row.TenantDisplayName,
			Status:      row.TenantStatus,
		},
	}, nil
}

func (db *DB) FindDomainsByTenant(ctx context.Context, tenantID uuid.UUID) ([]*core.TenantDomain, error) {
	query := `
        SELECT ` + domainColumns + `
        FROM tenant_domains d
        WHERE d.tenant_id = $1 AND d.deleted_at IS NULL
        ORDER BY d.is_primary DESC, d.created_at
    `

	domains := []*core.TenantDomain{}
	if err := db.SelectContext(ctx, &domains, query, tenantID); err != nil {
		return nil, fmt.Errorf("list domains for tenant %s: %w", tenantID, err)
	}
	return domains, nil
}

func (db *DB) CreateDomain(ctx context.Context, d *core.TenantDomain) error {
	query := `
        INSERT INTO tenant_domains (
            id, tenant_id, domain_name, kind, is_primary,
            verification_status, verification_token, verification_expires_at,
            verification_attempts, last_verification_attempt_at, verified_at,
            ssl_status, created_at, updated_at
        ) VALUES (
            :id, :tenant_id, :domain_name, :kind, :is_primary,
            :verification_status, :verification_token, :verification_expires_at,
            :verification_attempts, :last_verification_attempt_at, :verified_at,
            :ssl_status, :created_at, :updated_at
        )`

	if _, err := db.NamedExecContext(ctx, query, d); err != nil {
		if isUniqueViolation(err) {
			return core.ErrDomainExists
		}
		return fmt.Errorf("create domain %s: %w", d.DomainName, err)
	}
	return nil
}

func (db *DB) GetDomain(ctx context.Context, tenantID, id uuid.UUID) (*core.TenantDomain, error) {
	query := `
        SELECT ` + domainColumns + `
        FROM tenant_domains d
        WHERE d.id = $1 AND d.tenant_id = $2 AND d.deleted_at IS NULL
    `

	var d core.TenantDomain
	if err := db.GetContext(ctx, &d, query, id, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get domain %s: %w", id, err)
	}
	return &d, nil
}

// GetDomainByID loads a live domain regardless of tenant. Used by workers,
// which only carry the domain id.
func (db *DB) GetDomainByID(ctx context.Context, id uuid.UUID) (*core.TenantDomain, error) {
	query := `
        SELECT ` + domainColumns + `
        FROM tenant_domains d
        WHERE d.id = $1 AND d.deleted_at IS NULL
    `

	var d core.TenantDomain
	if err := db.GetContext(ctx, &d, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get domain %s: %w", id, err)
	}
	return &d, nil
}

// UpdateDomainState persists the mutable lifecycle fields of d.
func (db *DB) UpdateDomainState(ctx context.Context, d *core.TenantDomain) error {
	query := `
        UPDATE tenant_domains SET
            verification_status = :verification_status,
            verification_token = :verification_token,
            verification_expires_at = :verification_expires_at,
            verification_attempts = :verification_attempts,
            last_verification_attempt_at = :last_verification_attempt_at,
            verified_at = :verified_at,
            ssl_status = :ssl_status,
            updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL
    `

	res, err := db.NamedExecContext(ctx, query, d)
	if err != nil {
		return fmt.Errorf("update domain %s: %w", d.DomainName, err)
	}
	return expectOneRow(res)
}

func (db *DB) SoftDeleteDomain(ctx context.Context, tenantID, id uuid.UUID, now time.Time) error {
	query := `
        UPDATE tenant_domains SET
            deleted_at = $1,
            is_primary = FALSE,
            updated_at = $1
        WHERE id = $2 AND tenant_id = $3 AND deleted_at IS NULL
    `

	res, err := db.ExecContext(ctx, query, now, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete domain %s: %w", id, err)
	}
	return expectOneRow(res)
}

// SetPrimary makes id the only primary domain of the tenant.
func (db *DB) SetPrimary(ctx context.Context, tenantID, id uuid.UUID, now time.Time) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
        UPDATE tenant_domains SET is_primary = FALSE, updated_at = $1
        WHERE tenant_id = $2 AND is_primary AND deleted_at IS NULL
    `, now, tenantID); err != nil {
		return fmt.Errorf("clear primary for tenant %s: %w", tenantID, err)
	}

	res, err := tx.ExecContext(ctx, `
        UPDATE tenant_domains SET is_primary = TRUE, updated_at = $1
        WHERE id = $2 AND tenant_id = $3 AND deleted_at IS NULL
    `, now, id, tenantID)
	if err != nil {
		return fmt.Errorf("set primary %s: %w", id, err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}

	return tx.Commit()
}

// PromotePrimary marks the oldest verified live domain of the tenant as
// primary. It returns nil, nil when the tenant has none.
func (db *DB) PromotePrimary(ctx context.Context, tenantID uuid.UUID, now time.Time) (*core.TenantDomain, error) {
	query := `
        UPDATE tenant_domains d SET is_primary = TRUE, updated_at = $1
        WHERE d.id = (
            SELECT id FROM tenant_domains
            WHERE tenant_id = $2 AND deleted_at IS NULL
              AND verification_status = 'verified'
            ORDER BY created_at
            LIMIT 1
        )
        RETURNING ` + domainColumns

	var d core.TenantDomain
	if err := db.GetContext(ctx, &d, query, now, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("promote primary for tenant %s: %w", tenantID, err)
	}
	return &d, nil
}

// ListPendingVerification returns pending domains not attempted since
// attemptedBefore, least recently attempted first.
func (db *DB) ListPendingVerification(ctx context.Context, attemptedBefore time.Time, limit int) ([]*core.TenantDomain, error) {
	query := `
        SELECT ` + domainColumns + `
        FROM tenant_domains d
        WHERE d.verification_status = 'pending'
          AND d.deleted_at IS NULL
          AND (d.last_verification_attempt_at IS NULL OR d.last_verification_attempt_at < $1)
        ORDER BY d.last_verification_attempt_at NULLS FIRST
        LIMIT $2
    `

	domains := []*core.TenantDomain{}
	if err := db.SelectContext(ctx, &domains, query, attemptedBefore, limit); err != nil {
		return nil, fmt.Errorf("list pending domains: %w", err)
	}
	return domains, nil
}

// ListCertificateChecks returns verified custom domains whose certificate is
// being provisioned, served or renewed after expiry.
func (db *DB) ListCertificateChecks(ctx context.Context, limit int) ([]*core.TenantDomain, error) {
	query := `
        SELECT ` + domainColumns + `
        FROM tenant_domains d
        WHERE d.verification_status = 'verified'
          AND d.kind = 'custom'
          AND d.ssl_status IN ('provisioning', 'active', 'expired')
          AND d.deleted_at IS NULL
        ORDER BY d.updated_at
        LIMIT $1
    `

	domains := []*core.TenantDomain{}
	if err := db.SelectContext(ctx, &domains, query, limit); err != nil {
		return nil, fmt.Errorf("list certificate checks: %w", err)
	}
	return domains, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
