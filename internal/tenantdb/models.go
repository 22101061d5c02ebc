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

// Package tenantdb owns everything that lives inside a tenant's own database:
// the schema and its migrations, baseline seed data, and the routed,
// tenant-filtered handles business code uses to reach it.
package tenantdb

import (
	"time"

	"github.com/opentrusty/tenancy/internal/authz"
)

// ApplicationRole is a role defined inside a tenant database
type ApplicationRole struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID       int64     `gorm:"not null;index;uniqueIndex:ux_roles_tenant_name,priority:1" json:"tenant_id"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	NormalizedName string    `gorm:"size:100;not null;uniqueIndex:ux_roles_tenant_name,priority:2" json:"-"`
	Permissions    string    `gorm:"type:text;not null;default:''" json:"permissions"`
	CreatedAt      time.Time `json:"created_at"`
}

func (ApplicationRole) TableName() string { return "application_roles" }

// Allows reports whether the role grants permission
func (r *ApplicationRole) Allows(permission string) bool {
	return authz.Allows(authz.Split(r.Permissions), permission)
}

// ApplicationUser is a user account inside a tenant database
type ApplicationUser struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID        int64     `gorm:"not null;index;uniqueIndex:ux_users_tenant_email,priority:1" json:"tenant_id"`
	Email           string    `gorm:"size:320;not null" json:"email"`
	NormalizedEmail string    `gorm:"size:320;not null;uniqueIndex:ux_users_tenant_email,priority:2" json:"-"`
	FullName        string    `gorm:"size:200" json:"full_name"`
	PasswordHash    string    `gorm:"type:text" json:"-"`
	IsActive        bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (ApplicationUser) TableName() string { return "application_users" }

// UserRole binds a user to a role
type UserRole struct {
	UserID   string `gorm:"primaryKey;size:36" json:"user_id"`
	RoleID   int64  `gorm:"primaryKey" json:"role_id"`
	TenantID int64  `gorm:"not null;index" json:"tenant_id"`
}

func (UserRole) TableName() string { return "user_roles" }

// TenantIdentity marks which tenant owns a database. It holds a single row.
type TenantIdentity struct {
	ID        int       `gorm:"primaryKey"`
	TenantID  int64     `gorm:"not null"`
	Slug      string    `gorm:"size:63;not null"`
	ClaimedAt time.Time `gorm:"not null"`
}

func (TenantIdentity) TableName() string { return "tenant_identity" }

// MigrationRecord is a row of the migration history table
type MigrationRecord struct {
	Version   string    `gorm:"primaryKey;size:32" json:"version"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	AppliedAt time.Time `gorm:"not null" json:"applied_at"`
}

func (MigrationRecord) TableName() string { return "migration_history" }
