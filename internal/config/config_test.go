package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates configuration loading from the environment.
// Scope: Unit Test
// Expected: Defaults apply when unset and explicit values override them.
// Test Case ID: CFG-01
func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://tenancy@localhost/tenancy")
	t.Setenv("PROVISIONING_TEMPLATE_CONNECTION_STRING", "host=db dbname={DB}")
	t.Setenv("PROVISIONING_AUTO_ACTIVATE_TENANTS", "false")
	t.Setenv("PROVISIONING_TIMEOUT", "90s")
	t.Setenv("TENANTDB_MAX_OPEN_CONNS", "3")
	t.Setenv("ADMIN_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Provisioning.Driver)
	assert.Equal(t, "postgres", cfg.Provisioning.AdminDatabase)
	assert.Equal(t, "tenant_", cfg.Provisioning.DatabasePrefix)
	assert.False(t, cfg.Provisioning.AutoActivateTenants)
	assert.Equal(t, 90*time.Second, cfg.Provisioning.Timeout)
	assert.Nil(t, cfg.Provisioning.BaselineRoles)
	assert.Equal(t, 3, cfg.TenantDB.MaxOpenConns)
	assert.Equal(t, "secret", cfg.Admin.APIKey)
	assert.Equal(t, "8080", cfg.Server.Port)
}

// TestPurpose: Validates rejection of unusable configuration.
// Scope: Unit Test
// Expected: A missing database, a bad driver and a template without exactly one placeholder fail.
// Test Case ID: CFG-02
func TestLoad_Invalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_PASSWORD", "")
	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("PROVISIONING_DRIVER", "mysql")
	_, err = Load()
	assert.ErrorContains(t, err, "PROVISIONING_DRIVER")

	t.Setenv("PROVISIONING_DRIVER", "sqlite")
	t.Setenv("PROVISIONING_TEMPLATE_CONNECTION_STRING", "/data/{DB}/{DB}.db")
	_, err = Load()
	assert.ErrorContains(t, err, "{DB}")

	t.Setenv("PROVISIONING_TEMPLATE_CONNECTION_STRING", "")
	t.Setenv("PROVISIONING_BASELINE_ROLES", "Admin:*,admin:read")
	_, err = Load()
	assert.ErrorContains(t, err, "duplicate role")
}

// TestPurpose: Validates parsing of the baseline role list.
// Scope: Unit Test
// Expected: Names and pipe-separated permissions are parsed; blanks are ignored.
// Test Case ID: CFG-03
func TestParseBaselineRoles(t *testing.T) {
	roles, err := ParseBaselineRoles("Administrador:*, Gerente:users.read|sales.* ,Vendedor")
	require.NoError(t, err)
	require.Len(t, roles, 3)
	assert.Equal(t, BaselineRole{Name: "Administrador", Permissions: []string{"*"}}, roles[0])
	assert.Equal(t, []string{"users.read", "sales.*"}, roles[1].Permissions)
	assert.Equal(t, "Vendedor", roles[2].Name)
	assert.Empty(t, roles[2].Permissions)

	_, err = ParseBaselineRoles(":read")
	assert.Error(t, err)
	_, err = ParseBaselineRoles("Gerente:sales")
	assert.ErrorContains(t, err, "invalid permission")
}

// TestPurpose: Validates .env loading.
// Scope: Unit Test
// Expected: Values from the file are loaded without overriding the environment; missing files are skipped.
// Test Case ID: CFG-04
func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TENANCY_TEST_A=from-file\nTENANCY_TEST_B=from-file\n"), 0o600))

	t.Setenv("TENANCY_TEST_B", "from-env")
	t.Setenv("TENANCY_TEST_A", "")
	require.NoError(t, os.Unsetenv("TENANCY_TEST_A"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("TENANCY_TEST_A"))
	assert.Equal(t, "from-env", os.Getenv("TENANCY_TEST_B"))
}
