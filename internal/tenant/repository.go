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

package tenant

import (
	"context"
	"time"
)

// Repository defines the interface for the control-plane tenant registry.
//
// Create, Update and SaveProvisioning must translate storage-level unique
// violations on slug or database name into *ConflictError. The storage
// constraint is the authority; UniquenessValidator only avoids doing work that
// is bound to fail.
//
// The provisioning columns (connection string, provisioned at, provisioning
// error) belong to the provisioning pipeline: Update leaves them alone and
// SaveProvisioning writes nothing else.
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)

	// SaveProvisioning writes DatabaseName, ConnectionString, ProvisionedAt,
	// ProvisioningError and UpdatedAt of tenant
	SaveProvisioning(ctx context.Context, tenant *Tenant) error

	// ActivateProvisioned moves a provisioned tenant from provisioning to
	// active. It reports false, without error, when the tenant has meanwhile
	// left provisioning status.
	ActivateProvisioned(ctx context.Context, id int64, at time.Time) (bool, error)

	// ListProvisioned returns non-archived tenants that have a database
	ListProvisioned(ctx context.Context) ([]*Tenant, error)

	// ExistsSlug reports whether a non-archived tenant other than excludeID uses slug (case-insensitive)
	ExistsSlug(ctx context.Context, slug string, excludeID int64) (bool, error)

	// ExistsDatabaseName reports whether a non-archived tenant other than excludeID uses name (case-insensitive)
	ExistsDatabaseName(ctx context.Context, name string, excludeID int64) (bool, error)
}

// MembershipRepository defines the interface for user to tenant memberships
type MembershipRepository interface {
	Add(ctx context.Context, m *Membership) error
	Get(ctx context.Context, userID string, tenantID int64) (*Membership, error)
	ListForUser(ctx context.Context, userID string) ([]*Membership, error)
	GetDefault(ctx context.Context, userID string) (*Membership, error)
	SetDefault(ctx context.Context, userID string, tenantID int64) error
	Revoke(ctx context.Context, userID string, tenantID int64) error
}
