package tenant

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates slug format rules used for tenant identification.
// Scope: Unit Test
// Expected: Lowercase alphanumerics with inner hyphens pass; everything else is rejected with ErrValidation.
// Test Case ID: TEN-NAM-01
func TestValidateSlug(t *testing.T) {
	tests := []struct {
		slug  string
		valid bool
	}{
		{"acme", true},
		{"acme-corp", true},
		{"a1-b2-c3", true},
		{"", false},
		{"-acme", false},
		{"acme-", false},
		{"Acme", false},
		{"acme_corp", false},
		{"acme corp", false},
		{"açai", false},
		{strings.Repeat("a", 63), true},
		{strings.Repeat("a", 64), false},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			err := ValidateSlug(tt.slug)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrValidation))
			}
		})
	}
}

// TestPurpose: Validates that database names are safe postgres identifiers.
// Scope: Unit Test
// Security: SQL Injection Prevention (CWE-89)
// Expected: Names with quotes, semicolons, or leading digits are rejected.
// Test Case ID: TEN-NAM-02
func TestValidateDatabaseName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"tenant_acme", true},
		{"_private", true},
		{"t1", true},
		{"1tenant", false},
		{"tenant-acme", false},
		{`tenant"; DROP DATABASE x; --`, false},
		{"", false},
		{strings.Repeat("d", 64), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDatabaseName(tt.name)
			assert.Equal(t, tt.valid, err == nil)
		})
	}
}

// TestPurpose: Validates derivation of database names from slugs.
// Scope: Unit Test
// Expected: Hyphens become underscores, the prefix is kept, and the result is lowercase.
// Test Case ID: TEN-NAM-03
func TestDeriveDatabaseName(t *testing.T) {
	assert.Equal(t, "tenant_acme_corp", DeriveDatabaseName("tenant_", "acme-corp"))
	assert.Equal(t, "tenant_acme", DeriveDatabaseName("Tenant_", "ACME"))
	assert.NoError(t, ValidateDatabaseName(DeriveDatabaseName("tenant_", "a-b-c")))
}

// TestPurpose: Validates normalization of identifiers before comparison.
// Scope: Unit Test
// Expected: Identifiers are trimmed and lowercased.
// Test Case ID: TEN-NAM-04
func TestNormalize(t *testing.T) {
	assert.Equal(t, "acme", NormalizeSlug("  ACME "))
	assert.Equal(t, "tenant_acme", NormalizeDatabaseName("Tenant_ACME\n"))
}

// TestPurpose: Validates derived database names at the identifier limit.
// Scope: Unit Test
// Expected: Long slugs are cut to 63 characters, suffixed candidates keep that length, and leading digits get an underscore.
// Test Case ID: TEN-NAM-05
func TestDatabaseNameCandidate(t *testing.T) {
	slug := strings.Repeat("a", 63)
	base := DeriveDatabaseName("tenant_", slug)
	assert.Len(t, base, maxIdentifierLength)
	assert.NoError(t, ValidateDatabaseName(base))

	assert.Equal(t, base, DatabaseNameCandidate(base, 1))
	second := DatabaseNameCandidate(base, 2)
	assert.Len(t, second, maxIdentifierLength)
	assert.Equal(t, base[:61]+"_2", second)
	assert.Equal(t, base[:60]+"_20", DatabaseNameCandidate(base, 20))
	assert.Equal(t, "tenant_acme_3", DatabaseNameCandidate("tenant_acme", 3))

	assert.Equal(t, "_123_shop", DeriveDatabaseName("", "123-shop"))
	assert.NoError(t, ValidateDatabaseName(DeriveDatabaseName("", "9")))
}
