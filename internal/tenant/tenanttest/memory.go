// Package tenanttest provides in-memory control-plane repositories for tests.
package tenanttest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opentrusty/tenancy/internal/tenant"
)

// Repository is a mutex-guarded tenant.Repository. Uniqueness of slug and
// database name among non-archived tenants is enforced inside the lock, the
// same way the partial unique indexes do it in postgres.
type Repository struct {
	mu      sync.Mutex
	nextID  int64
	tenants map[int64]*tenant.Tenant

	// FailUpdate, when set, is returned by Update and SaveProvisioning
	FailUpdate error
}

// NewRepository creates an empty repository
func NewRepository() *Repository {
	return &Repository{tenants: make(map[int64]*tenant.Tenant)}
}

func (r *Repository) Create(_ context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.conflict(t); err != nil {
		return err
	}
	r.nextID++
	t.ID = r.nextID
	if t.Branding != nil && t.Branding.ID == 0 {
		t.Branding.ID = t.ID
		id := t.Branding.ID
		t.BrandingID = &id
	}
	r.tenants[t.ID] = t.Clone()
	return nil
}

func (r *Repository) GetByID(_ context.Context, id int64) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return t.Clone(), nil
}

func (r *Repository) GetBySlug(_ context.Context, slug string) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.sorted() {
		if strings.EqualFold(t.Slug, slug) && t.Status != tenant.StatusArchived {
			return t.Clone(), nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (r *Repository) Update(_ context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailUpdate != nil {
		return r.FailUpdate
	}
	stored, ok := r.tenants[t.ID]
	if !ok {
		return tenant.ErrTenantNotFound
	}
	if err := r.conflict(t); err != nil {
		return err
	}
	if t.Branding != nil && t.Branding.ID == 0 {
		t.Branding.ID = t.ID
		id := t.Branding.ID
		t.BrandingID = &id
	}
	next := t.Clone()
	next.ConnectionString = stored.ConnectionString
	next.ExternalConnectionString = stored.ExternalConnectionString
	next.ProvisionedAt = stored.ProvisionedAt
	next.ProvisioningError = stored.ProvisioningError
	r.tenants[t.ID] = next
	return nil
}

func (r *Repository) SaveProvisioning(_ context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailUpdate != nil {
		return r.FailUpdate
	}
	stored, ok := r.tenants[t.ID]
	if !ok {
		return tenant.ErrTenantNotFound
	}
	if r.taken(t.ID, func(o *tenant.Tenant) string { return o.DatabaseName }, t.DatabaseName) {
		return &tenant.ConflictError{Field: tenant.FieldDatabaseName, Value: t.DatabaseName}
	}
	next := stored.Clone()
	next.DatabaseName = t.DatabaseName
	next.ConnectionString = t.ConnectionString
	next.ProvisionedAt = t.ProvisionedAt
	next.ProvisioningError = t.ProvisioningError
	next.UpdatedAt = t.UpdatedAt
	r.tenants[t.ID] = next.Clone()
	return nil
}

func (r *Repository) ActivateProvisioned(_ context.Context, id int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tenants[id]
	if !ok {
		return false, tenant.ErrTenantNotFound
	}
	if stored.Status != tenant.StatusProvisioning || stored.ProvisionedAt == nil {
		return false, nil
	}
	stored.Status = tenant.StatusActive
	stored.ActivatedAt = &at
	stored.SuspendedAt = nil
	stored.UpdatedAt = at
	return true, nil
}

func (r *Repository) List(_ context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.sorted()
	if offset >= len(all) {
		return []*tenant.Tenant{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]*tenant.Tenant, 0, len(all))
	for _, t := range all {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (r *Repository) ListProvisioned(_ context.Context) ([]*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*tenant.Tenant
	for _, t := range r.sorted() {
		if t.HasDatabase() && t.Status != tenant.StatusArchived {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (r *Repository) ExistsSlug(_ context.Context, slug string, excludeID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.taken(excludeID, func(t *tenant.Tenant) string { return t.Slug }, slug), nil
}

func (r *Repository) ExistsDatabaseName(_ context.Context, name string, excludeID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.taken(excludeID, func(t *tenant.Tenant) string { return t.DatabaseName }, name), nil
}

func (r *Repository) conflict(t *tenant.Tenant) error {
	if r.taken(t.ID, func(o *tenant.Tenant) string { return o.Slug }, t.Slug) {
		return &tenant.ConflictError{Field: tenant.FieldSlug, Value: t.Slug}
	}
	if r.taken(t.ID, func(o *tenant.Tenant) string { return o.DatabaseName }, t.DatabaseName) {
		return &tenant.ConflictError{Field: tenant.FieldDatabaseName, Value: t.DatabaseName}
	}
	return nil
}

func (r *Repository) taken(excludeID int64, field func(*tenant.Tenant) string, value string) bool {
	if value == "" {
		return false
	}
	for id, o := range r.tenants {
		if id == excludeID || o.Status == tenant.StatusArchived {
			continue
		}
		if strings.EqualFold(field(o), value) {
			return true
		}
	}
	return false
}

func (r *Repository) sorted() []*tenant.Tenant {
	all := make([]*tenant.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// MembershipRepository is a mutex-guarded tenant.MembershipRepository
type MembershipRepository struct {
	mu     sync.Mutex
	nextID int64
	items  []*tenant.Membership
}

// NewMembershipRepository creates an empty repository
func NewMembershipRepository() *MembershipRepository {
	return &MembershipRepository{}
}

func (r *MembershipRepository) Add(_ context.Context, m *tenant.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.find(m.UserID, m.TenantID); existing != nil {
		existing.RevokedAt = nil
		*m = *existing
		return nil
	}
	r.nextID++
	m.ID = r.nextID
	cp := *m
	r.items = append(r.items, &cp)
	return nil
}

func (r *MembershipRepository) Get(_ context.Context, userID string, tenantID int64) (*tenant.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.find(userID, tenantID)
	if m == nil {
		return nil, tenant.ErrMembershipNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MembershipRepository) ListForUser(_ context.Context, userID string) ([]*tenant.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*tenant.Membership
	for _, m := range r.items {
		if m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MembershipRepository) GetDefault(_ context.Context, userID string) (*tenant.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.items {
		if m.UserID == userID && m.IsDefault && m.IsActive() {
			cp := *m
			return &cp, nil
		}
	}
	return nil, tenant.ErrMembershipNotFound
}

func (r *MembershipRepository) SetDefault(_ context.Context, userID string, tenantID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target := r.find(userID, tenantID)
	if target == nil || !target.IsActive() {
		return tenant.ErrMembershipNotFound
	}
	for _, m := range r.items {
		if m.UserID == userID {
			m.IsDefault = false
		}
	}
	target.IsDefault = true
	return nil
}

func (r *MembershipRepository) Revoke(_ context.Context, userID string, tenantID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.find(userID, tenantID)
	if m == nil || !m.IsActive() {
		return tenant.ErrMembershipNotFound
	}
	now := time.Now().UTC()
	m.RevokedAt = &now
	m.IsDefault = false
	return nil
}

func (r *MembershipRepository) find(userID string, tenantID int64) *tenant.Membership {
	for _, m := range r.items {
		if m.UserID == userID && m.TenantID == tenantID {
			return m
		}
	}
	return nil
}
