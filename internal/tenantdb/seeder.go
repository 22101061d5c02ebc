package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opentrusty/tenancy/internal/authz"
	"github.com/opentrusty/tenancy/internal/id"
	"github.com/opentrusty/tenancy/internal/observability/logger"
	"gorm.io/gorm"
)

// ErrDatabaseClaimed is returned when a database already belongs to another tenant
var ErrDatabaseClaimed = errors.New("database is claimed by another tenant")

// AdminRoleName is the baseline role granted to the seeded administrator
const AdminRoleName = "Administrador"

// PasswordHasher hashes the seeded administrator password
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// RoleSpec describes a baseline role
type RoleSpec struct {
	Name        string
	Permissions []string
}

// DefaultRoles returns the baseline roles every tenant starts with
func DefaultRoles() []RoleSpec {
	return []RoleSpec{
		{Name: AdminRoleName, Permissions: []string{authz.Wildcard}},
		{Name: "Gerente", Permissions: []string{authz.PermUsersRead, authz.PermSalesAll, authz.PermReportsRead}},
		{Name: "Vendedor", Permissions: []string{authz.PermSalesRead, authz.PermSalesWrite}},
	}
}

// AdminContact identifies the initial administrator of a tenant. Password is
// only used when the account does not exist yet.
type AdminContact struct {
	Email    string
	FullName string
	Password string
}

// SeedResult reports what a seeding run created
type SeedResult struct {
	RolesCreated int
	AdminCreated bool
	AdminUserID  string
}

// Seeder inserts baseline data into a migrated tenant database
type Seeder struct {
	router *Router
	hasher PasswordHasher
	roles  []RoleSpec
	now    func() time.Time
}

// NewSeeder creates a seeder. DefaultRoles is used when roles is empty.
func NewSeeder(router *Router, hasher PasswordHasher, roles []RoleSpec) *Seeder {
	if len(roles) == 0 {
		roles = DefaultRoles()
	}
	return &Seeder{router: router, hasher: hasher, roles: roles, now: time.Now}
}

// Seed claims the database at scope for scope.TenantID, then creates any
// missing baseline role and the administrator account. Running it again is a
// no-op.
func (s *Seeder) Seed(ctx context.Context, scope Scope, admin AdminContact) (*SeedResult, error) {
	if scope.TenantID == 0 {
		return nil, ErrNoTenant
	}
	email := strings.TrimSpace(admin.Email)
	if email == "" {
		return nil, errors.New("admin email is required")
	}

	h, err := s.router.Open(ctx, scope.ConnectionString)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	// The ownership marker is checked without the row filter so a foreign claim is visible
	if err := s.claim(ctx, h.DB(), scope); err != nil {
		return nil, err
	}
	if err := installTenantFilter(h.db, scope.TenantID); err != nil {
		return nil, fmt.Errorf("failed to install tenant filter: %w", err)
	}

	result := &SeedResult{}
	err = h.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roles, created, err := s.seedRoles(tx)
		if err != nil {
			return err
		}
		result.RolesCreated = created

		adminRole, ok := roles[strings.ToUpper(AdminRoleName)]
		if !ok {
			return fmt.Errorf("baseline role %s is not configured", AdminRoleName)
		}
		userID, createdAdmin, err := s.seedAdmin(tx, email, admin)
		if err != nil {
			return err
		}
		result.AdminUserID = userID
		result.AdminCreated = createdAdmin

		link := UserRole{UserID: userID, RoleID: adminRole.ID}
		if err := tx.Where(&UserRole{UserID: userID, RoleID: adminRole.ID}).FirstOrCreate(&link).Error; err != nil {
			return fmt.Errorf("failed to assign admin role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed tenant database: %w", err)
	}

	slog.InfoContext(ctx, "seeded tenant database",
		logger.TenantID(scope.TenantID),
		slog.Int("roles_created", result.RolesCreated),
		slog.Bool("admin_created", result.AdminCreated),
	)
	return result, nil
}

func (s *Seeder) claim(ctx context.Context, db *gorm.DB, scope Scope) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ident TenantIdentity
		err := tx.Where("id = ?", 1).First(&ident).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ident = TenantIdentity{ID: 1, TenantID: scope.TenantID, Slug: scope.Slug, ClaimedAt: s.now().UTC()}
			if err := tx.Create(&ident).Error; err != nil {
				return fmt.Errorf("failed to claim database: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read database owner: %w", err)
		}
		if ident.TenantID != scope.TenantID {
			return fmt.Errorf("%w: owned by tenant %d", ErrDatabaseClaimed, ident.TenantID)
		}
		return nil
	})
}

func (s *Seeder) seedRoles(tx *gorm.DB) (map[string]ApplicationRole, int, error) {
	roles := make(map[string]ApplicationRole, len(s.roles))
	created := 0
	for _, baseline := range s.roles {
		normalized := strings.ToUpper(strings.TrimSpace(baseline.Name))

		var role ApplicationRole
		err := tx.Where("normalized_name = ?", normalized).First(&role).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			role = ApplicationRole{
				Name:           baseline.Name,
				NormalizedName: normalized,
				Permissions:    strings.Join(baseline.Permissions, ","),
			}
			if err := tx.Create(&role).Error; err != nil {
				return nil, 0, fmt.Errorf("failed to create role %s: %w", baseline.Name, err)
			}
			created++
		case err != nil:
			return nil, 0, fmt.Errorf("failed to look up role %s: %w", baseline.Name, err)
		}
		roles[normalized] = role
	}
	return roles, created, nil
}

func (s *Seeder) seedAdmin(tx *gorm.DB, email string, admin AdminContact) (string, bool, error) {
	normalized := strings.ToLower(email)

	var user ApplicationUser
	err := tx.Where("normalized_email = ?", normalized).First(&user).Error
	if err == nil {
		return user.ID, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, fmt.Errorf("failed to look up admin user: %w", err)
	}

	if admin.Password == "" {
		return "", false, errors.New("admin password is required to create the admin user")
	}
	hash, err := s.hasher.Hash(admin.Password)
	if err != nil {
		return "", false, fmt.Errorf("failed to hash admin password: %w", err)
	}

	fullName := admin.FullName
	if fullName == "" {
		fullName = AdminRoleName
	}
	user = ApplicationUser{
		ID:              id.NewUUIDv7(),
		Email:           email,
		NormalizedEmail: normalized,
		FullName:        fullName,
		PasswordHash:    hash,
		IsActive:        true,
	}
	if err := tx.Create(&user).Error; err != nil {
		return "", false, fmt.Errorf("failed to create admin user: %w", err)
	}
	return user.ID, true, nil
}
