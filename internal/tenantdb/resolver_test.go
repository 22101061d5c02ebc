package tenantdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opentrusty/tenancy/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	mu      sync.Mutex
	calls   int
	tenants map[int64]*tenant.Tenant
}

func (s *countingSource) GetByID(_ context.Context, id int64) (*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	t, ok := s.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return t.Clone(), nil
}

func (s *countingSource) set(t *tenant.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

// TestPurpose: Validates scope resolution and caching.
// Scope: Unit Test
// Expected: Active tenants resolve once and are served from cache until invalidated.
// Test Case ID: TDB-RES-01
func TestResolver_CachesUntilInvalidated(t *testing.T) {
	src := &countingSource{tenants: map[int64]*tenant.Tenant{
		1: {ID: 1, Slug: "acme", Status: tenant.StatusActive, ConnectionString: "a.db"},
	}}
	r := NewResolver(src, time.Minute)
	ctx := context.Background()

	scope, err := r.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Scope{TenantID: 1, Slug: "acme", ConnectionString: "a.db"}, scope)

	_, err = r.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	src.set(&tenant.Tenant{ID: 1, Slug: "acme", Status: tenant.StatusSuspended, ConnectionString: "a.db"})
	r.Invalidate(1)
	_, err = r.Resolve(ctx, 1)
	assert.ErrorIs(t, err, tenant.ErrTenantNotActive)
}

// TestPurpose: Validates that unroutable tenants are refused.
// Scope: Unit Test
// Security: Access to Suspended Tenants (CWE-284)
// Expected: Missing, unprovisioned, and zero tenants fail with the matching error.
// Test Case ID: TDB-RES-02
func TestResolver_Errors(t *testing.T) {
	src := &countingSource{tenants: map[int64]*tenant.Tenant{
		2: {ID: 2, Status: tenant.StatusActive},
	}}
	r := NewResolver(src, time.Minute)
	ctx := context.Background()

	_, err := r.Resolve(ctx, 0)
	assert.ErrorIs(t, err, ErrNoTenant)
	_, err = r.Resolve(ctx, 99)
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	_, err = r.Resolve(ctx, 2)
	assert.ErrorIs(t, err, tenant.ErrNotProvisioned)
}
