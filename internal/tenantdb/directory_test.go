package tenantdb

import (
	"context"
	"testing"
	"time"

	"github.com/opentrusty/tenancy/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that directory operations follow the tenant in the request context.
// Scope: Unit Test
// Security: Cross-Tenant Data Access Prevention (CWE-639)
// Expected: Each tenant sees only its own roles and users, and duplicate role names are rejected.
// Test Case ID: TDB-DIR-01
func TestDirectory_RoutesByContext(t *testing.T) {
	base := newTestRouter()
	dbA := migratedDatabase(t, base)
	dbB := migratedDatabase(t, base)
	seeder := NewSeeder(base, plainHasher{}, nil)
	ctx := context.Background()

	_, err := seeder.Seed(ctx, Scope{TenantID: 1, Slug: "acme", ConnectionString: dbA}, AdminContact{Email: "a@acme.com", Password: "x"})
	require.NoError(t, err)
	_, err = seeder.Seed(ctx, Scope{TenantID: 2, Slug: "beta", ConnectionString: dbB}, AdminContact{Email: "b@beta.com", Password: "y"})
	require.NoError(t, err)

	src := &countingSource{tenants: map[int64]*tenant.Tenant{
		1: {ID: 1, Slug: "acme", Status: tenant.StatusActive, ConnectionString: dbA},
		2: {ID: 2, Slug: "beta", Status: tenant.StatusActive, ConnectionString: dbB},
	}}
	router := NewRouter(Config{Driver: DriverSQLite, MaxOpenConns: 1}, NewResolver(src, time.Minute))
	dir := NewDirectory(router)

	ctxA := tenant.WithContext(ctx, tenant.Context{TenantID: 1, UserID: "u"})
	ctxB := tenant.WithContext(ctx, tenant.Context{TenantID: 2, UserID: "u"})

	role, err := dir.CreateRole(ctxA, "Suporte", []string{"tickets.*"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), role.TenantID)

	_, err = dir.CreateRole(ctxA, "suporte", nil)
	assert.ErrorIs(t, err, ErrRoleExists)

	_, err = dir.CreateRole(ctxA, "Broken", []string{"tickets"})
	assert.ErrorIs(t, err, tenant.ErrValidation)

	rolesA, err := dir.ListRoles(ctxA)
	require.NoError(t, err)
	assert.Len(t, rolesA, 4)

	rolesB, err := dir.ListRoles(ctxB)
	require.NoError(t, err)
	assert.Len(t, rolesB, 3)
	for _, r := range rolesB {
		switch r.Name {
		case AdminRoleName:
			assert.True(t, r.Allows("tickets.close"))
		case "Gerente":
			assert.True(t, r.Allows("sales.refund"))
			assert.False(t, r.Allows("users.write"))
		case "Vendedor":
			assert.False(t, r.Allows("reports.read"))
		}
	}

	usersB, err := dir.ListUsers(ctxB)
	require.NoError(t, err)
	require.Len(t, usersB, 1)
	assert.Equal(t, "b@beta.com", usersB[0].Email)

	_, err = dir.ListRoles(ctx)
	assert.ErrorIs(t, err, ErrNoTenant)
}
