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

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/tenancy/internal/tenant"
)

// MembershipRepository implements tenant.MembershipRepository
type MembershipRepository struct {
	db *DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

const membershipColumns = `id, user_id, tenant_id, is_default, created_at, revoked_at`

// Add creates a membership, reviving it if it was revoked
func (r *MembershipRepository) Add(ctx context.Context, m *tenant.Membership) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO tenant_memberships (user_id, tenant_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, tenant_id) DO UPDATE SET revoked_at = NULL
		RETURNING `+membershipColumns,
		m.UserID, m.TenantID, m.CreatedAt,
	).Scan(&m.ID, &m.UserID, &m.TenantID, &m.IsDefault, &m.CreatedAt, &m.RevokedAt)
	if err != nil {
		return fmt.Errorf("failed to add membership: %w", err)
	}
	return nil
}

// Get retrieves the membership of userID in tenantID
func (r *MembershipRepository) Get(ctx context.Context, userID string, tenantID int64) (*tenant.Membership, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+membershipColumns+` FROM tenant_memberships
		WHERE user_id = $1 AND tenant_id = $2
	`, userID, tenantID)
	return scanMembership(row)
}

// ListForUser lists every membership of userID
func (r *MembershipRepository) ListForUser(ctx context.Context, userID string) ([]*tenant.Membership, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+membershipColumns+` FROM tenant_memberships
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var out []*tenant.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetDefault retrieves the live default membership of userID
func (r *MembershipRepository) GetDefault(ctx context.Context, userID string) (*tenant.Membership, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+membershipColumns+` FROM tenant_memberships
		WHERE user_id = $1 AND is_default AND revoked_at IS NULL
	`, userID)
	return scanMembership(row)
}

// SetDefault moves the default flag of userID to tenantID atomically
func (r *MembershipRepository) SetDefault(ctx context.Context, userID string, tenantID int64) error {
	return pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `
			SELECT id FROM tenant_memberships
			WHERE user_id = $1 AND tenant_id = $2 AND revoked_at IS NULL
			FOR UPDATE
		`, userID, tenantID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return tenant.ErrMembershipNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock membership: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE tenant_memberships SET is_default = FALSE
			WHERE user_id = $1 AND is_default AND id <> $2
		`, userID, id); err != nil {
			return fmt.Errorf("failed to clear default membership: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE tenant_memberships SET is_default = TRUE WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to set default membership: %w", err)
		}
		return nil
	})
}

// Revoke soft-revokes the membership of userID in tenantID
func (r *MembershipRepository) Revoke(ctx context.Context, userID string, tenantID int64) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE tenant_memberships SET revoked_at = now(), is_default = FALSE
		WHERE user_id = $1 AND tenant_id = $2 AND revoked_at IS NULL
	`, userID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to revoke membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrMembershipNotFound
	}
	return nil
}

func scanMembership(row pgx.Row) (*tenant.Membership, error) {
	var m tenant.Membership
	if err := row.Scan(&m.ID, &m.UserID, &m.TenantID, &m.IsDefault, &m.CreatedAt, &m.RevokedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}
	return &m, nil
}
