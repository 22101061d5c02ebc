package provisioning

import (
	"errors"
	"testing"

	"github.com/opentrusty/tenancy/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates connection string templating.
// Scope: Unit Test
// Security: Connection String Injection Prevention (CWE-99)
// Expected: The placeholder is replaced once; missing or repeated placeholders and unsafe names are rejected.
// Test Case ID: PRV-TPL-01
func TestResolveConnectionString(t *testing.T) {
	got, err := ResolveConnectionString("postgres://u:p@db:5432/{DB}?sslmode=disable", "tenant_acme")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/tenant_acme?sslmode=disable", got)

	got, err = ResolveConnectionString("host=db dbname={DB} user=u", "tenant_acme")
	require.NoError(t, err)
	assert.Equal(t, "host=db dbname=tenant_acme user=u", got)

	tests := []struct {
		name, template, db string
	}{
		{"missing placeholder", "postgres://db/fixed", "tenant_acme"},
		{"repeated placeholder", "postgres://db/{DB}?application_name={DB}", "tenant_acme"},
		{"injection", "postgres://db/{DB}", "x?sslmode=disable&host=evil"},
		{"empty name", "postgres://db/{DB}", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveConnectionString(tt.template, tt.db)
			assert.True(t, errors.Is(err, tenant.ErrValidation))
		})
	}
}
