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

// CreateTenantWithDomain inserts the tenant and its primary subdomain in one
// transaction.
func (db *DB) CreateTenantWithDomain(ctx context.Context, tenant *core.Tenant, primary *core.TenantDomain) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO tenants (id, slug, display_name, status, created_at, updated_at)
        VALUES (:id, :slug, :display_name, :status, :created_at, :updated_at)
    `
	if _, err := tx.NamedExecContext(ctx, query, tenant); err != nil {
		if isUniqueViolation(err) {
			return core.ErrTenantExists
		}
		return fmt.Errorf("create tenant %s: %w", tenant.Slug, err)
	}

	domainQuery := `
        INSERT INTO tenant_domains (
            id, tenant_id, domain_name, kind, is_primary,
            verification_status, verification_attempts, verified_at,
            ssl_status, created_at, updated_at
        ) VALUES (
            :id, :tenant_id, :domain_name, :kind, :is_primary,
            :verification_status, :verification_attempts, :verified_at,
            :ssl_status, :created_at, :updated_at
        )`
	if _, err := tx.NamedExecContext(ctx, domainQuery, primary); err != nil {
		if isUniqueViolation(err) {
			return core.ErrDomainExists
		}
		return fmt.Errorf("create primary domain %s: %w", primary.DomainName, err)
	}

	return tx.Commit()
}

func (db *DB) GetTenant(ctx context.Context, id uuid.UUID) (*core.Tenant, error) {
	var tenant core.Tenant
	query := `
        SELECT id, slug, display_name, status, created_at, updated_at
        FROM tenants
        WHERE id = $1
    `

	if err := db.GetContext(ctx, &tenant, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return &tenant, nil
}

func (db *DB) UpdateTenantStatus(ctx context.Context, id uuid.UUID, status core.TenantStatus, now time.Time) error {
	query := `UPDATE tenants SET status = $1, updated_at = $2 WHERE id = $3`

	res, err := db.ExecContext(ctx, query, status, now, id)
	if err != nil {
		return fmt.Errorf("update tenant %s status: %w", id, err)
	}
	return expectOneRow(res)
}
