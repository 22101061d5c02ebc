package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates wildcard and exact permission matching.
// Scope: Unit Test
// Security: Least privilege for tenant roles
// Expected: "*" covers everything, "resource.*" covers only its resource, exact grants match exactly.
// Test Case ID: AUTHZ-01
func TestAllows(t *testing.T) {
	assert.True(t, Allows([]string{Wildcard}, PermRolesWrite))
	assert.True(t, Allows([]string{PermSalesAll}, PermSalesWrite))
	assert.False(t, Allows([]string{PermSalesAll}, PermReportsRead))
	assert.False(t, Allows([]string{"sal.*"}, PermSalesRead))
	assert.True(t, Allows([]string{PermUsersRead, PermReportsRead}, PermReportsRead))
	assert.False(t, Allows([]string{PermUsersRead}, PermUsersWrite))
	assert.False(t, Allows(nil, PermUsersRead))
}

// TestPurpose: Validates grant syntax checks.
// Scope: Unit Test
// Expected: Well-formed grants pass; malformed ones are rejected.
// Test Case ID: AUTHZ-02
func TestValidateGrant(t *testing.T) {
	for _, ok := range []string{"*", "sales.*", "users.read", "audit_log.export"} {
		assert.NoError(t, ValidateGrant(ok), ok)
	}
	for _, bad := range []string{"", "sales", "Sales.read", "sales.read.all", "*.read", "sales.*x"} {
		assert.Error(t, ValidateGrant(bad), bad)
	}
	assert.Equal(t, []string{"a.b", "c.*"}, Split(" a.b, ,c.* "))
}
