// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/tenancy/internal/tenant"
)

// Partial unique indexes backing tenant uniqueness
const (
	constraintTenantSlug         = "ux_tenants_slug"
	constraintTenantDatabaseName = "ux_tenants_database_name"
)

const tenantColumns = `
	t.id, t.name, t.slug, t.status, t.database_name, t.connection_string,
	t.document_number, t.primary_contact_name, t.primary_contact_email, t.primary_contact_phone,
	t.is_demo, t.region, t.notes, t.branding_id, t.provisioning_error,
	t.created_at, t.provisioned_at, t.activated_at, t.suspended_at, t.deleted_at, t.updated_at,
	t.external_connection_string,
	b.id, b.display_name, b.logo_url, b.favicon_url, b.primary_color, b.secondary_color
`

const tenantFrom = `FROM tenants t LEFT JOIN tenant_brandings b ON b.id = t.branding_id`

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts a tenant and its branding
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	err := pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		if err := saveBranding(ctx, tx, t); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO tenants (
				name, slug, status, database_name, connection_string,
				document_number, primary_contact_name, primary_contact_email, primary_contact_phone,
				is_demo, region, notes, branding_id, provisioning_error,
				created_at, provisioned_at, activated_at, suspended_at, deleted_at, updated_at,
				external_connection_string
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
			RETURNING id
		`,
			t.Name, t.Slug, t.Status, nullable(t.DatabaseName), nullable(t.ConnectionString),
			nullable(t.DocumentNumber), nullable(t.PrimaryContactName), nullable(t.PrimaryContactEmail), nullable(t.PrimaryContactPhone),
			t.IsDemo, nullable(t.Region), nullable(t.Notes), t.BrandingID, nullable(t.ProvisioningError),
			t.CreatedAt, t.ProvisionedAt, t.ActivatedAt, t.SuspendedAt, t.DeletedAt, t.UpdatedAt,
			nullable(t.ExternalConnectionString),
		).Scan(&t.ID)
	})
	if err != nil {
		return tenantWriteError("create", t, err)
	}
	return nil
}

// Update writes the administrative columns of t in one transaction. The
// provisioning columns are left to SaveProvisioning.
func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	err := pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		if err := saveBranding(ctx, tx, t); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE tenants SET
				name = $2, slug = $3, status = $4, database_name = $5,
				document_number = $6, primary_contact_name = $7, primary_contact_email = $8, primary_contact_phone = $9,
				is_demo = $10, region = $11, notes = $12, branding_id = $13,
				activated_at = $14, suspended_at = $15, deleted_at = $16, updated_at = $17
			WHERE id = $1
		`,
			t.ID, t.Name, t.Slug, t.Status, nullable(t.DatabaseName),
			nullable(t.DocumentNumber), nullable(t.PrimaryContactName), nullable(t.PrimaryContactEmail), nullable(t.PrimaryContactPhone),
			t.IsDemo, nullable(t.Region), nullable(t.Notes), t.BrandingID,
			t.ActivatedAt, t.SuspendedAt, t.DeletedAt, t.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return tenant.ErrTenantNotFound
		}
		return nil
	})
	if err != nil {
		return tenantWriteError("update", t, err)
	}
	return nil
}

// SaveProvisioning writes only the columns owned by the provisioning pipeline,
// so administrative changes made while it runs are kept
func (r *TenantRepository) SaveProvisioning(ctx context.Context, t *tenant.Tenant) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE tenants SET
			database_name = $2, connection_string = $3, provisioned_at = $4,
			provisioning_error = $5, updated_at = $6
		WHERE id = $1
	`, t.ID, nullable(t.DatabaseName), nullable(t.ConnectionString), t.ProvisionedAt,
		nullable(t.ProvisioningError), t.UpdatedAt,
	)
	if err != nil {
		return tenantWriteError("save provisioning state of", t, err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// ActivateProvisioned activates the tenant only if it is still provisioning
func (r *TenantRepository) ActivateProvisioned(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE tenants SET status = 'active', activated_at = $2, suspended_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'provisioning' AND provisioned_at IS NOT NULL
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to activate tenant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// saveBranding inserts or updates the branding of t and sets t.BrandingID
func saveBranding(ctx context.Context, tx pgx.Tx, t *tenant.Tenant) error {
	b := t.Branding
	if b == nil {
		return nil
	}

	if t.BrandingID == nil {
		if err := tx.QueryRow(ctx, `
			INSERT INTO tenant_brandings (display_name, logo_url, favicon_url, primary_color, secondary_color)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, nullable(b.DisplayName), nullable(b.LogoURL), nullable(b.FaviconURL),
			nullable(b.PrimaryColor), nullable(b.SecondaryColor),
		).Scan(&b.ID); err != nil {
			return fmt.Errorf("failed to create branding: %w", err)
		}
		id := b.ID
		t.BrandingID = &id
		return nil
	}

	b.ID = *t.BrandingID
	if _, err := tx.Exec(ctx, `
		UPDATE tenant_brandings SET
			display_name = $2, logo_url = $3, favicon_url = $4,
			primary_color = $5, secondary_color = $6, updated_at = now()
		WHERE id = $1
	`, b.ID, nullable(b.DisplayName), nullable(b.LogoURL), nullable(b.FaviconURL),
		nullable(b.PrimaryColor), nullable(b.SecondaryColor),
	); err != nil {
		return fmt.Errorf("failed to update branding: %w", err)
	}
	return nil
}

func tenantWriteError(op string, t *tenant.Tenant, err error) error {
	if errors.Is(err, tenant.ErrTenantNotFound) {
		return err
	}
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case constraintTenantSlug:
			return &tenant.ConflictError{Field: tenant.FieldSlug, Value: t.Slug}
		case constraintTenantDatabaseName:
			return &tenant.ConflictError{Field: tenant.FieldDatabaseName, Value: t.DatabaseName}
		}
	}
	return fmt.Errorf("failed to %s tenant: %w", op, err)
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id int64) (*tenant.Tenant, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+tenantColumns+tenantFrom+` WHERE t.id = $1`, id)
	return scanTenant(row)
}

// GetBySlug retrieves the non-archived tenant with slug
func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	row := r.db.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+tenantFrom+` WHERE lower(t.slug) = lower($1) AND t.status <> 'archived'`, slug)
	return scanTenant(row)
}

// List lists tenants ordered by id
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+tenantColumns+tenantFrom+` ORDER BY t.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return collectTenants(rows)
}

// ListProvisioned lists non-archived tenants that own a database
func (r *TenantRepository) ListProvisioned(ctx context.Context) ([]*tenant.Tenant, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+tenantColumns+tenantFrom+`
		 WHERE t.connection_string IS NOT NULL AND t.status <> 'archived' ORDER BY t.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list provisioned tenants: %w", err)
	}
	return collectTenants(rows)
}

// ExistsSlug implements tenant.Repository
func (r *TenantRepository) ExistsSlug(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tenants
			WHERE lower(slug) = lower($1) AND status <> 'archived' AND id <> $2
		)
	`, slug, excludeID).Scan(&exists)
	return exists, err
}

// ExistsDatabaseName implements tenant.Repository
func (r *TenantRepository) ExistsDatabaseName(ctx context.Context, name string, excludeID int64) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tenants
			WHERE lower(database_name) = lower($1) AND status <> 'archived' AND id <> $2
		)
	`, name, excludeID).Scan(&exists)
	return exists, err
}

func collectTenants(rows pgx.Rows) ([]*tenant.Tenant, error) {
	defer rows.Close()

	tenants := []*tenant.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}
	return tenants, nil
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var t tenant.Tenant
	var databaseName, connectionString, documentNumber, contactName, contactEmail, contactPhone *string
	var region, notes, provisioningError, externalConnectionString *string
	var brandingID *int64
	var bDisplayName, bLogoURL, bFaviconURL, bPrimary, bSecondary *string

	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Status, &databaseName, &connectionString,
		&documentNumber, &contactName, &contactEmail, &contactPhone,
		&t.IsDemo, &region, &notes, &t.BrandingID, &provisioningError,
		&t.CreatedAt, &t.ProvisionedAt, &t.ActivatedAt, &t.SuspendedAt, &t.DeletedAt, &t.UpdatedAt,
		&externalConnectionString,
		&brandingID, &bDisplayName, &bLogoURL, &bFaviconURL, &bPrimary, &bSecondary,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}

	t.DatabaseName = deref(databaseName)
	t.ConnectionString = deref(connectionString)
	t.DocumentNumber = deref(documentNumber)
	t.PrimaryContactName = deref(contactName)
	t.PrimaryContactEmail = deref(contactEmail)
	t.PrimaryContactPhone = deref(contactPhone)
	t.Region = deref(region)
	t.Notes = deref(notes)
	t.ProvisioningError = deref(provisioningError)
	t.ExternalConnectionString = deref(externalConnectionString)

	if brandingID != nil {
		t.Branding = &tenant.Branding{
			ID:             *brandingID,
			DisplayName:    deref(bDisplayName),
			LogoURL:        deref(bLogoURL),
			FaviconURL:     deref(bFaviconURL),
			PrimaryColor:   deref(bPrimary),
			SecondaryColor: deref(bSecondary),
		}
	}
	return &t, nil
}
