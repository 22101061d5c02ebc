package tenantdb

import (
	"time"

	"gorm.io/gorm"
)

// Schema snapshots used by migrations. They are frozen at the version that
// introduced them so later model changes never alter an old migration.

type roleV1 struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	TenantID       int64  `gorm:"not null;index;uniqueIndex:ux_roles_tenant_name,priority:1"`
	Name           string `gorm:"size:100;not null"`
	NormalizedName string `gorm:"size:100;not null;uniqueIndex:ux_roles_tenant_name,priority:2"`
	CreatedAt      time.Time
}

func (roleV1) TableName() string { return "application_roles" }

type roleV2 struct {
	roleV1
	Permissions string `gorm:"type:text;not null;default:''"`
}

func (roleV2) TableName() string { return "application_roles" }

type userV1 struct {
	ID              string `gorm:"primaryKey;size:36"`
	TenantID        int64  `gorm:"not null;index;uniqueIndex:ux_users_tenant_email,priority:1"`
	Email           string `gorm:"size:320;not null"`
	NormalizedEmail string `gorm:"size:320;not null;uniqueIndex:ux_users_tenant_email,priority:2"`
	FullName        string `gorm:"size:200"`
	PasswordHash    string `gorm:"type:text"`
	IsActive        bool   `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (userV1) TableName() string { return "application_users" }

type userRoleV1 struct {
	UserID   string `gorm:"primaryKey;size:36"`
	RoleID   int64  `gorm:"primaryKey"`
	TenantID int64  `gorm:"not null;index"`
}

func (userRoleV1) TableName() string { return "user_roles" }

type tenantIdentityV1 struct {
	ID        int       `gorm:"primaryKey"`
	TenantID  int64     `gorm:"not null"`
	Slug      string    `gorm:"size:63;not null"`
	ClaimedAt time.Time `gorm:"not null"`
}

func (tenantIdentityV1) TableName() string { return "tenant_identity" }

func createTable(model any) func(*gorm.DB) error {
	return func(tx *gorm.DB) error {
		if tx.Migrator().HasTable(model) {
			return nil
		}
		return tx.Migrator().CreateTable(model)
	}
}

// Migrations returns the tenant schema migrations in version order
func Migrations() []Migration {
	return []Migration{
		{Version: "20240101000001", Name: "create_application_roles", Up: createTable(&roleV1{})},
		{Version: "20240101000002", Name: "create_application_users", Up: createTable(&userV1{})},
		{Version: "20240101000003", Name: "create_user_roles", Up: createTable(&userRoleV1{})},
		{
			Version: "20240315000001",
			Name:    "add_role_permissions",
			Up: func(tx *gorm.DB) error {
				if tx.Migrator().HasColumn(&roleV2{}, "Permissions") {
					return nil
				}
				return tx.Migrator().AddColumn(&roleV2{}, "Permissions")
			},
		},
		{Version: "20240601000001", Name: "create_tenant_identity", Up: createTable(&tenantIdentityV1{})},
	}
}
