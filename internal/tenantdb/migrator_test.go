package tenantdb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// TestPurpose: Validates that migrations are applied once and in version order.
// Scope: Unit Test
// Expected: The first run applies every migration, a second run applies nothing, and history lists all versions.
// Test Case ID: TDB-MIG-01
func TestMigrator_ApplyIsIdempotent(t *testing.T) {
	r := newTestRouter()
	m := NewMigrator(r)
	dsn := tempDatabase(t)
	ctx := context.Background()

	applied, err := m.Apply(ctx, dsn)
	require.NoError(t, err)
	require.Len(t, applied, len(Migrations()))
	assert.Equal(t, m.Latest(), applied[len(applied)-1])

	again, err := m.Apply(ctx, dsn)
	require.NoError(t, err)
	assert.Empty(t, again)

	history, err := m.History(ctx, dsn)
	require.NoError(t, err)
	require.Len(t, history, len(Migrations()))
	for i := 1; i < len(history); i++ {
		assert.Less(t, history[i-1].Version, history[i].Version)
	}

	pending, err := m.Pending(ctx, dsn)
	require.NoError(t, err)
	assert.Empty(t, pending)

	h, err := r.Open(ctx, dsn)
	require.NoError(t, err)
	defer h.Close()
	assert.True(t, h.DB().Migrator().HasColumn(&ApplicationRole{}, "Permissions"))
	assert.True(t, h.DB().Migrator().HasTable(&TenantIdentity{}))
}

// TestPurpose: Validates that migrations registered out of order still run by version.
// Scope: Unit Test
// Expected: Versions are applied in ascending order.
// Test Case ID: TDB-MIG-02
func TestMigrator_SortsByVersion(t *testing.T) {
	var order []string
	step := func(v string) Migration {
		return Migration{Version: v, Name: "step_" + v, Up: func(*gorm.DB) error {
			order = append(order, v)
			return nil
		}}
	}

	m := NewMigrator(newTestRouter(), step("003"), step("001"), step("002"))
	applied, err := m.Apply(context.Background(), tempDatabase(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"001", "002", "003"}, order)
	assert.Equal(t, order, applied)
}

// TestPurpose: Validates that a failing migration is rolled back and not recorded.
// Scope: Unit Test
// Expected: Earlier migrations stay applied, the failing one leaves no table and no history row, and a fixed rerun converges.
// Test Case ID: TDB-MIG-03
func TestMigrator_FailureRollsBack(t *testing.T) {
	r := newTestRouter()
	dsn := tempDatabase(t)
	ctx := context.Background()
	boom := errors.New("boom")

	failing := Migration{Version: "002", Name: "broken", Up: func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE TABLE half_done (id INTEGER)").Error; err != nil {
			return err
		}
		return boom
	}}
	ok := Migration{Version: "001", Name: "first", Up: createTable(&roleV1{})}

	applied, err := NewMigrator(r, ok, failing).Apply(ctx, dsn)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"001"}, applied)

	h, err := r.Open(ctx, dsn)
	require.NoError(t, err)
	assert.False(t, h.DB().Migrator().HasTable("half_done"))
	require.NoError(t, h.Close())

	history, err := NewMigrator(r, ok).History(ctx, dsn)
	require.NoError(t, err)
	require.Len(t, history, 1)

	fixed := Migration{Version: "002", Name: "broken", Up: func(*gorm.DB) error { return nil }}
	applied, err = NewMigrator(r, ok, fixed).Apply(ctx, dsn)
	require.NoError(t, err)
	assert.Equal(t, []string{"002"}, applied)
}

// TestPurpose: Validates that cancellation stops between migrations.
// Scope: Unit Test
// Expected: Migrations after the cancellation point are not applied and remain pending.
// Test Case ID: TDB-MIG-04
func TestMigrator_Cancellation(t *testing.T) {
	r := newTestRouter()
	dsn := tempDatabase(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := Migration{Version: "001", Name: "first", Up: func(*gorm.DB) error {
		cancel()
		return nil
	}}
	second := Migration{Version: "002", Name: "second", Up: func(*gorm.DB) error { return nil }}
	m := NewMigrator(r, first, second)

	_, err := m.Apply(ctx, dsn)
	require.Error(t, err)

	pending, err := m.Pending(context.Background(), dsn)
	require.NoError(t, err)
	require.NotEmpty(t, pending)
	assert.Equal(t, "002", pending[len(pending)-1].Version)
}

// TestPurpose: Validates rejection of malformed migration sets.
// Scope: Unit Test
// Expected: Duplicate versions fail before anything runs.
// Test Case ID: TDB-MIG-05
func TestMigrator_DuplicateVersion(t *testing.T) {
	noop := func(*gorm.DB) error { return nil }
	m := NewMigrator(newTestRouter(),
		Migration{Version: "001", Name: "a", Up: noop},
		Migration{Version: "001", Name: "b", Up: noop},
	)
	_, err := m.Apply(context.Background(), tempDatabase(t))
	assert.ErrorContains(t, err, "duplicate migration version")
}
