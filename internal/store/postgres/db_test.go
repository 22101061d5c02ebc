package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opentrusty/tenancy/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that unique violations on the tenant indexes become conflict errors.
// Scope: Unit Test
// Expected: Each index maps to its field; unrelated errors are wrapped.
// Test Case ID: PG-ERR-01
func TestTenantWriteError(t *testing.T) {
	tn := &tenant.Tenant{Slug: "acme", DatabaseName: "tenant_acme"}

	err := tenantWriteError("create", tn, fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505", ConstraintName: constraintTenantSlug}))
	var ce *tenant.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, tenant.FieldSlug, ce.Field)
	assert.Equal(t, "Slug 'acme' já está em uso por outro tenant.", ce.Error())

	err = tenantWriteError("update", tn, &pgconn.PgError{Code: "23505", ConstraintName: constraintTenantDatabaseName})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "DatabaseName 'tenant_acme' já está em uso por outro tenant.", ce.Error())

	err = tenantWriteError("update", tn, tenant.ErrTenantNotFound)
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)

	err = tenantWriteError("update", tn, errors.New("connection reset"))
	assert.ErrorContains(t, err, "failed to update tenant")
	assert.False(t, errors.Is(err, tenant.ErrConflict))
}

// TestPurpose: Validates that the embedded control-plane migrations are present and ordered.
// Scope: Unit Test
// Expected: Migration files are versioned and the unique indexes are declared.
// Test Case ID: PG-MIG-01
func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var all strings.Builder
	for i, e := range entries {
		assert.True(t, strings.HasPrefix(e.Name(), fmt.Sprintf("%04d_", i+1)), e.Name())
		b, err := migrationFS.ReadFile("migrations/" + e.Name())
		require.NoError(t, err)
		all.Write(b)
	}
	assert.Contains(t, all.String(), constraintTenantSlug)
	assert.Contains(t, all.String(), constraintTenantDatabaseName)
}

// TestPurpose: Validates connection string construction.
// Scope: Unit Test
// Expected: A URL wins over discrete fields.
// Test Case ID: PG-CFG-01
func TestConfig_ConnString(t *testing.T) {
	assert.Equal(t, "postgres://x", Config{URL: "postgres://x", Host: "h"}.ConnString())
	assert.Contains(t, Config{Host: "h", Port: "5432", Database: "d"}.ConnString(), "host=h port=5432")
}
