package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opentrusty/tenancy/internal/authz"
	"github.com/opentrusty/tenancy/internal/tenant"
	"gorm.io/gorm"
)

// ErrRoleExists is returned when a role name is already used in the tenant
var ErrRoleExists = errors.New("role already exists")

// Directory reads and writes users and roles of the tenant carried by the
// request context.
type Directory struct {
	router *Router
}

// NewDirectory creates a new directory
func NewDirectory(router *Router) *Directory {
	return &Directory{router: router}
}

// ListRoles lists the roles of the current tenant
func (d *Directory) ListRoles(ctx context.Context) ([]ApplicationRole, error) {
	s, err := d.router.SessionFor(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var roles []ApplicationRole
	if err := s.DB().WithContext(ctx).Order("id").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// ListUsers lists the users of the current tenant
func (d *Directory) ListUsers(ctx context.Context) ([]ApplicationUser, error) {
	s, err := d.router.SessionFor(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var users []ApplicationUser
	if err := s.DB().WithContext(ctx).Order("created_at").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// CreateRole adds a role to the current tenant
func (d *Directory) CreateRole(ctx context.Context, name string, permissions []string) (*ApplicationRole, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &tenant.ValidationError{Field: "name", Message: "is required"}
	}
	for _, p := range permissions {
		if err := authz.ValidateGrant(p); err != nil {
			return nil, &tenant.ValidationError{Field: "permissions", Message: err.Error()}
		}
	}

	s, err := d.router.SessionFor(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	role := &ApplicationRole{
		Name:           name,
		NormalizedName: strings.ToUpper(name),
		Permissions:    strings.Join(permissions, ","),
	}
	err = s.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ApplicationRole{}).Where("normalized_name = ?", role.NormalizedName).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrRoleExists
		}
		return tx.Create(role).Error
	})
	if err != nil {
		if errors.Is(err, ErrRoleExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	return role, nil
}
