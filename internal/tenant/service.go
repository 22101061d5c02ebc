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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opentrusty/tenancy/internal/audit"
	"github.com/opentrusty/tenancy/internal/observability/logger"
)

// ProvisionReport summarizes a successful provisioning run
type ProvisionReport struct {
	DatabaseName         string   `json:"database_name"`
	DatabaseCreated      bool     `json:"database_created"`
	MigrationsApplied    []string `json:"migrations_applied"`
	RolesCreated         int      `json:"roles_created"`
	AdminEmail           string   `json:"admin_email"`
	AdminCreated         bool     `json:"admin_created"`
	InitialAdminPassword string   `json:"initial_admin_password,omitempty"`
}

// ProvisionOutcome is the result of a background provisioning run
type ProvisionOutcome struct {
	Report *ProvisionReport
	Err    error
}

// Provisioner prepares the isolated database of a tenant. ProvisionAsync
// delivers exactly one outcome and then closes the channel.
type Provisioner interface {
	Provision(ctx context.Context, t *Tenant) (*ProvisionReport, error)
	ProvisionAsync(ctx context.Context, t *Tenant) <-chan ProvisionOutcome
}

// RouteInvalidator drops cached routing data for a tenant
type RouteInvalidator interface {
	Invalidate(tenantID int64)
}

// CreateResult is returned by CreateTenant. Provisioning is nil when the
// request did not ask for a database.
type CreateResult struct {
	Tenant       *Tenant          `json:"tenant"`
	Provisioning *ProvisionReport `json:"provisioning,omitempty"`
}

// Service provides tenant management business logic
type Service struct {
	repo        Repository
	memberships MembershipRepository
	uniqueness  *UniquenessValidator
	provisioner Provisioner
	invalidator RouteInvalidator
	auditLogger audit.Logger
	now         func() time.Time
}

// NewService creates a new tenant service. invalidator may be nil.
func NewService(
	repo Repository,
	memberships MembershipRepository,
	provisioner Provisioner,
	invalidator RouteInvalidator,
	auditLogger audit.Logger,
) *Service {
	return &Service{
		repo:        repo,
		memberships: memberships,
		uniqueness:  NewUniquenessValidator(repo),
		provisioner: provisioner,
		invalidator: invalidator,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// CreateTenant registers a tenant in provisioning status and, when requested,
// provisions its database. Uniqueness conflicts are reported before any side
// effect. A provisioning failure returns both the created tenant and the error
// so the caller can retry with ProvisionTenant.
func (s *Service) CreateTenant(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := s.uniqueness.Check(ctx, req.Slug, req.DatabaseName, 0); err != nil {
		return nil, err
	}

	now := s.now()
	t := &Tenant{
		Name:                req.Name,
		Slug:                req.Slug,
		Status:              StatusProvisioning,
		DatabaseName:        req.DatabaseName,
		DocumentNumber:      req.DocumentNumber,
		PrimaryContactName:  req.PrimaryContactName,
		PrimaryContactEmail: req.PrimaryContactEmail,
		PrimaryContactPhone: req.PrimaryContactPhone,
		IsDemo:              req.IsDemo,
		Region:              req.Region,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if req.Branding != nil {
		t.Branding = req.Branding.apply(nil)
	}
	t.ExternalConnectionString = req.ConnectionString

	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: t.ID,
		Resource: audit.ResourceTenant,
		Metadata: map[string]any{
			audit.AttrSlug:         t.Slug,
			audit.AttrDatabaseName: t.DatabaseName,
		},
	})

	result := &CreateResult{Tenant: t}
	if !req.ProvisionDatabase {
		return result, nil
	}

	report, err := s.provisioner.Provision(ctx, t)
	if err != nil {
		return result, err
	}
	result.Provisioning = report
	return result, nil
}

// ProvisionTenant (re)runs provisioning for an existing tenant. Every step is
// idempotent, so this is the retry path after a failure.
func (s *Service) ProvisionTenant(ctx context.Context, id int64) (*Tenant, *ProvisionReport, error) {
	t, err := s.provisionable(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	report, err := s.provisioner.Provision(ctx, t)
	if err != nil {
		return t, nil, err
	}
	s.invalidate(t.ID)
	return t, report, nil
}

// ProvisionTenantAsync starts provisioning in the background and returns the
// tenant as it was when the run started. The run outlives ctx; its outcome is
// delivered once on the returned channel and persisted on the tenant.
func (s *Service) ProvisionTenantAsync(ctx context.Context, id int64) (*Tenant, <-chan ProvisionOutcome, error) {
	t, err := s.provisionable(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	snapshot := t.Clone()

	runs := s.provisioner.ProvisionAsync(ctx, t)
	out := make(chan ProvisionOutcome, 1)
	go func() {
		defer close(out)
		outcome := <-runs
		if outcome.Err == nil {
			s.invalidate(id)
		}
		out <- outcome
	}()
	return snapshot, out, nil
}

func (s *Service) provisionable(ctx context.Context, id int64) (*Tenant, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusDisabled || t.Status == StatusArchived {
		return nil, fmt.Errorf("%w: cannot provision a %s tenant", ErrInvalidTransition, t.Status)
	}
	return t, nil
}

// UpdateTenant applies an administrative update. Slug and database name
// renames are re-validated against every other non-archived tenant.
func (s *Service) UpdateTenant(ctx context.Context, id int64, req UpdateRequest) (*Tenant, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t := current.Clone()

	var slug, databaseName string
	if req.Slug != nil && *req.Slug != t.Slug {
		slug = *req.Slug
	}
	if req.DatabaseName != nil && *req.DatabaseName != t.DatabaseName {
		if t.HasDatabase() {
			return nil, &ValidationError{Field: "database_name", Message: "cannot change once the database exists"}
		}
		databaseName = *req.DatabaseName
	}
	if err := s.uniqueness.Check(ctx, slug, databaseName, t.ID); err != nil {
		return nil, err
	}
	if slug != "" {
		t.Slug = slug
	}
	if databaseName != "" {
		t.DatabaseName = databaseName
	}

	t.Name = req.Name
	t.DocumentNumber = req.DocumentNumber
	t.PrimaryContactName = req.PrimaryContactName
	t.PrimaryContactEmail = req.PrimaryContactEmail
	t.PrimaryContactPhone = req.PrimaryContactPhone
	t.Region = req.Region
	t.IsDemo = req.IsDemo
	t.Notes = req.Notes
	if req.Branding != nil {
		t.Branding = req.Branding.apply(t.Branding)
	}

	now := s.now()
	previous := t.Status
	if req.Status != "" {
		if err := applyStatus(t, req.Status, now); err != nil {
			return nil, err
		}
	}
	t.UpdatedAt = now

	if err := s.repo.Update(ctx, t); err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrTenantNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}
	s.invalidate(t.ID)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantUpdated,
		TenantID: t.ID,
		Resource: audit.ResourceTenant,
		Metadata: map[string]any{
			audit.AttrSlug:       t.Slug,
			audit.AttrStatusFrom: string(previous),
			audit.AttrStatusTo:   string(t.Status),
		},
	})

	return t, nil
}

// ChangeStatus moves a tenant along its lifecycle. The physical database is
// never touched by a status change.
func (s *Service) ChangeStatus(ctx context.Context, id int64, status Status) (*Tenant, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t := current.Clone()
	previous := t.Status

	now := s.now()
	if err := applyStatus(t, status, now); err != nil {
		return nil, err
	}
	if previous == t.Status {
		return t, nil
	}
	t.UpdatedAt = now

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to change tenant status: %w", err)
	}
	s.invalidate(t.ID)

	slog.InfoContext(ctx, "tenant status changed",
		logger.TenantID(t.ID),
		logger.Slug(t.Slug),
		logger.String("from", string(previous)),
		logger.String("to", string(t.Status)),
	)
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantStatusChanged,
		TenantID: t.ID,
		Resource: audit.ResourceTenant,
		Metadata: map[string]any{
			audit.AttrStatusFrom: string(previous),
			audit.AttrStatusTo:   string(t.Status),
		},
	})

	return t, nil
}

// applyStatus validates the transition and stamps the matching timestamp
func applyStatus(t *Tenant, next Status, now time.Time) error {
	if !next.IsValid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", next)}
	}
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	if t.Status == next {
		return nil
	}

	switch next {
	case StatusActive:
		if !t.IsProvisioned() {
			return ErrNotProvisioned
		}
		if t.ActivatedAt == nil || t.Status == StatusProvisioning {
			t.ActivatedAt = &now
		}
		t.SuspendedAt = nil
	case StatusSuspended:
		t.SuspendedAt = &now
	case StatusArchived:
		t.DeletedAt = &now
	}
	t.Status = next
	return nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, id int64) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// GetTenantBySlug retrieves a tenant by slug
func (s *Service) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.repo.GetBySlug(ctx, NormalizeSlug(slug))
}

// ListTenants lists tenants with pagination
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// ConnectionInfo returns the connection view of a tenant
func (s *Service) ConnectionInfo(ctx context.Context, id int64) (*ConnectionInfo, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ConnectionInfoOf(t), nil
}

// AddMember adds a user to a tenant, optionally making it the user's default
func (s *Service) AddMember(ctx context.Context, tenantID int64, req MembershipRequest) (*Membership, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusArchived {
		return nil, fmt.Errorf("%w: tenant is archived", ErrInvalidTransition)
	}

	m := &Membership{
		UserID:    req.UserID,
		TenantID:  tenantID,
		CreatedAt: s.now(),
	}
	if err := s.memberships.Add(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to add membership: %w", err)
	}

	// The first membership of a user becomes the default automatically
	if !req.IsDefault {
		if _, err := s.memberships.GetDefault(ctx, req.UserID); errors.Is(err, ErrMembershipNotFound) {
			req.IsDefault = true
		}
	}
	if req.IsDefault {
		if err := s.memberships.SetDefault(ctx, req.UserID, tenantID); err != nil {
			return nil, fmt.Errorf("failed to set default membership: %w", err)
		}
		m.IsDefault = true
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeMembershipAdded,
		TenantID: tenantID,
		Resource: audit.ResourceMembership,
		Metadata: map[string]any{audit.AttrUserID: req.UserID},
	})

	return m, nil
}

// RevokeMember soft-revokes a membership
func (s *Service) RevokeMember(ctx context.Context, tenantID int64, userID string) error {
	if err := s.memberships.Revoke(ctx, userID, tenantID); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeMembershipRevoked,
		TenantID: tenantID,
		Resource: audit.ResourceMembership,
		Metadata: map[string]any{audit.AttrUserID: userID},
	})
	return nil
}

// SetDefaultTenant makes tenantID the default tenant of userID
func (s *Service) SetDefaultTenant(ctx context.Context, userID string, tenantID int64) error {
	if err := s.memberships.SetDefault(ctx, userID, tenantID); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeDefaultTenantChanged,
		TenantID: tenantID,
		Resource: audit.ResourceMembership,
		Metadata: map[string]any{audit.AttrUserID: userID},
	})
	return nil
}

// ListMemberships lists the memberships of a user, revoked ones included
func (s *Service) ListMemberships(ctx context.Context, userID string) ([]*Membership, error) {
	return s.memberships.ListForUser(ctx, userID)
}

// ResolveTenant selects the tenant a request runs against. An explicit
// selection must be backed by a live membership; otherwise the user's default
// membership is used. Only active tenants are routable.
func (s *Service) ResolveTenant(ctx context.Context, userID string, requestedID int64) (*Tenant, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Message: "is required"}
	}

	var m *Membership
	var err error
	if requestedID != 0 {
		m, err = s.memberships.Get(ctx, userID, requestedID)
	} else {
		m, err = s.memberships.GetDefault(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	if !m.IsActive() {
		return nil, ErrMembershipNotFound
	}

	t, err := s.repo.GetByID(ctx, m.TenantID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusActive {
		return nil, ErrTenantNotActive
	}
	return t, nil
}

func (s *Service) invalidate(id int64) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(id)
	}
}
