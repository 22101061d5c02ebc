package tenantdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func newTestRouter() *Router {
	return NewRouter(Config{Driver: DriverSQLite, MaxOpenConns: 1}, nil)
}

// tempDatabase returns the connection string of an empty sqlite database
func tempDatabase(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "tenant.db")
}

// migratedDatabase returns a sqlite database with the full tenant schema
func migratedDatabase(t *testing.T, r *Router) string {
	t.Helper()
	dsn := tempDatabase(t)
	_, err := NewMigrator(r).Apply(context.Background(), dsn)
	require.NoError(t, err)
	return dsn
}
