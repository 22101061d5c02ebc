package provisioning

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/opentrusty/tenancy/internal/audit"
	"github.com/opentrusty/tenancy/internal/tenant"
	"github.com/opentrusty/tenancy/internal/tenant/tenanttest"
	"github.com/opentrusty/tenancy/internal/tenantdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

type migratorFunc func(ctx context.Context, conn string) ([]string, error)

func (f migratorFunc) Apply(ctx context.Context, conn string) ([]string, error) { return f(ctx, conn) }

type env struct {
	repo     *tenanttest.Repository
	router   *tenantdb.Router
	migrator *tenantdb.Migrator
	seeder   *tenantdb.Seeder
	cfg      Config
}

func newEnv(t *testing.T) *env {
	t.Helper()
	router := tenantdb.NewRouter(tenantdb.Config{Driver: tenantdb.DriverSQLite, MaxOpenConns: 1}, nil)
	return &env{
		repo:     tenanttest.NewRepository(),
		router:   router,
		migrator: tenantdb.NewMigrator(router),
		seeder:   tenantdb.NewSeeder(router, plainHasher{}, nil),
		cfg: Config{
			TemplateConnectionString: filepath.Join(t.TempDir(), "{DB}.db"),
			DatabasePrefix:           "tenant_",
			AutoActivateTenants:      true,
			AdminEmailDomain:         "example.test",
		},
	}
}

func (e *env) service(migrator SchemaMigrator, opts ...Option) *Service {
	if migrator == nil {
		migrator = e.migrator
	}
	opts = append([]Option{WithPasswordGenerator(func() (string, error) { return "Generated-Pass1!", nil })}, opts...)
	return NewService(e.cfg, e.repo, SQLiteCreator{}, migrator, e.seeder, audit.Nop{}, opts...)
}

func (e *env) register(t *testing.T, slug string) *tenant.Tenant {
	t.Helper()
	tn := &tenant.Tenant{Name: slug, Slug: slug, Status: tenant.StatusProvisioning, CreatedAt: time.Now()}
	require.NoError(t, e.repo.Create(context.Background(), tn))
	return tn
}

// TestPurpose: Validates the full provisioning pipeline against a real tenant database.
// Scope: Unit Test
// Expected: The tenant gets a derived database name, a migrated and seeded database, and becomes active.
// Test Case ID: PRV-SVC-01
func TestService_Provision(t *testing.T) {
	e := newEnv(t)
	svc := e.service(nil)
	ctx := context.Background()
	tn := e.register(t, "acme-corp")

	report, err := svc.Provision(ctx, tn)
	require.NoError(t, err)

	assert.Equal(t, "tenant_acme_corp", report.DatabaseName)
	assert.True(t, report.DatabaseCreated)
	assert.Len(t, report.MigrationsApplied, len(tenantdb.Migrations()))
	assert.Equal(t, 3, report.RolesCreated)
	assert.Equal(t, "admin@acme-corp.example.test", report.AdminEmail)
	assert.True(t, report.AdminCreated)
	assert.Equal(t, "Generated-Pass1!", report.InitialAdminPassword)

	stored, err := e.repo.GetByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusActive, stored.Status)
	assert.NotNil(t, stored.ProvisionedAt)
	assert.NotNil(t, stored.ActivatedAt)
	assert.Empty(t, stored.ProvisioningError)
	assert.Equal(t, filepath.Join(filepath.Dir(e.cfg.TemplateConnectionString), "tenant_acme_corp.db"), stored.ConnectionString)

	s, err := e.router.Session(ctx, tenantdb.Scope{TenantID: tn.ID, ConnectionString: stored.ConnectionString})
	require.NoError(t, err)
	defer s.Close()
	var roles []tenantdb.ApplicationRole
	require.NoError(t, s.DB().Find(&roles).Error)
	assert.Len(t, roles, 3)
}

// TestPurpose: Validates that re-running provisioning converges without duplicating anything.
// Scope: Unit Test
// Expected: The second run applies no migrations, creates no roles or admin, and reveals no password.
// Test Case ID: PRV-SVC-02
func TestService_Provision_Idempotent(t *testing.T) {
	e := newEnv(t)
	svc := e.service(nil)
	ctx := context.Background()
	tn := e.register(t, "acme")

	_, err := svc.Provision(ctx, tn)
	require.NoError(t, err)

	again, err := svc.Provision(ctx, tn)
	require.NoError(t, err)
	assert.False(t, again.DatabaseCreated)
	assert.Empty(t, again.MigrationsApplied)
	assert.Zero(t, again.RolesCreated)
	assert.False(t, again.AdminCreated)
	assert.Empty(t, again.InitialAdminPassword)
}

// TestPurpose: Validates database name collision handling.
// Scope: Unit Test
// Expected: A derived name already used by another tenant gets the next numeric suffix.
// Test Case ID: PRV-SVC-03
func TestService_Provision_NameCollision(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	squatter := &tenant.Tenant{Name: "x", Slug: "other", Status: tenant.StatusActive, DatabaseName: "tenant_acme"}
	require.NoError(t, e.repo.Create(ctx, squatter))
	tn := e.register(t, "acme")

	report, err := e.service(nil).Provision(ctx, tn)
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme_2", report.DatabaseName)
}

// TestPurpose: Validates failure reporting and retry after a failed step.
// Scope: Unit Test
// Expected: A migration failure yields an Error at the migrate step, keeps the tenant provisioning with the error recorded, and a retry succeeds and clears it.
// Test Case ID: PRV-SVC-04
func TestService_Provision_FailureThenRetry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.register(t, "acme")
	boom := errors.New("disk full")

	failing := e.service(migratorFunc(func(context.Context, string) ([]string, error) { return nil, boom }))
	_, err := failing.Provision(ctx, tn)
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StepMigrate, perr.Step)
	assert.Equal(t, tn.ID, perr.TenantID)
	assert.True(t, perr.Retryable())
	assert.ErrorIs(t, err, boom)

	stored, err := e.repo.GetByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusProvisioning, stored.Status)
	assert.Nil(t, stored.ProvisionedAt)
	assert.NotEmpty(t, stored.ConnectionString, "the database exists after the create step")
	assert.Contains(t, stored.ProvisioningError, StepMigrate)

	_, err = e.service(nil).Provision(ctx, stored)
	require.NoError(t, err)

	stored, err = e.repo.GetByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusActive, stored.Status)
	assert.Empty(t, stored.ProvisioningError)
}

// TestPurpose: Validates that activation is left to the operator when auto-activation is off.
// Scope: Unit Test
// Expected: The tenant is marked provisioned but stays in provisioning status.
// Test Case ID: PRV-SVC-05
func TestService_Provision_NoAutoActivate(t *testing.T) {
	e := newEnv(t)
	e.cfg.AutoActivateTenants = false
	e.cfg.DefaultAdminPassword = "Configured1!"
	ctx := context.Background()
	tn := e.register(t, "acme")

	report, err := e.service(nil).Provision(ctx, tn)
	require.NoError(t, err)
	assert.True(t, report.AdminCreated)
	assert.Empty(t, report.InitialAdminPassword, "configured passwords are not echoed")

	stored, err := e.repo.GetByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusProvisioning, stored.Status)
	assert.True(t, stored.IsProvisioned())
}

// TestPurpose: Validates that a tenant cannot adopt a database owned by another tenant.
// Scope: Unit Test
// Security: Cross-Tenant Data Exposure Prevention (CWE-200)
// Expected: Provisioning a second tenant against the first tenant's database fails at the seed step.
// Test Case ID: PRV-SVC-06
func TestService_Provision_ForeignDatabase(t *testing.T) {
	e := newEnv(t)
	svc := e.service(nil)
	ctx := context.Background()

	first := e.register(t, "acme")
	_, err := svc.Provision(ctx, first)
	require.NoError(t, err)

	second := &tenant.Tenant{
		Name: "beta", Slug: "beta", Status: tenant.StatusProvisioning,
		DatabaseName: "tenant_beta", ExternalConnectionString: first.ConnectionString,
	}
	require.NoError(t, e.repo.Create(ctx, second))

	_, err = svc.Provision(ctx, second)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StepSeed, perr.Step)
	assert.ErrorIs(t, err, tenantdb.ErrDatabaseClaimed)
}

// TestPurpose: Validates in-process duplicate suppression and asynchronous provisioning.
// Scope: Unit Test
// Expected: A second concurrent run for the same tenant fails with ErrAlreadyRunning; the async run delivers one outcome.
// Test Case ID: PRV-SVC-07
func TestService_ProvisionAsync_AlreadyRunning(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.register(t, "acme")

	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := migratorFunc(func(ctx context.Context, conn string) ([]string, error) {
		close(entered)
		<-release
		return e.migrator.Apply(ctx, conn)
	})
	svc := e.service(blocking)

	done := svc.ProvisionAsync(ctx, tn)
	<-entered
	assert.True(t, svc.IsRunning(tn.ID))

	_, err := svc.Provision(ctx, &tenant.Tenant{ID: tn.ID, Slug: "acme"})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	outcome := <-done
	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Report.AdminCreated)
	assert.False(t, svc.IsRunning(tn.ID))

	_, open := <-done
	assert.False(t, open)
}

// TestPurpose: Validates that provisioning without a template requires an explicit connection string.
// Scope: Unit Test
// Expected: The create step fails when neither is available.
// Test Case ID: PRV-SVC-08
func TestService_Provision_NoTemplate(t *testing.T) {
	e := newEnv(t)
	e.cfg.TemplateConnectionString = ""
	tn := e.register(t, "acme")

	_, err := e.service(nil).Provision(context.Background(), tn)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StepCreate, perr.Step)
}

// TestPurpose: Validates that administrative changes made while provisioning runs are kept.
// Scope: Unit Test
// Expected: A tenant renamed and disabled mid-run ends provisioned but still disabled, with the new name, and is never activated.
// Test Case ID: PRV-SVC-09
func TestService_Provision_AdminChangesDuringRun(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.register(t, "acme")
	admin := tenant.NewService(e.repo, tenanttest.NewMembershipRepository(), nil, nil, audit.Nop{})

	interfering := migratorFunc(func(ctx context.Context, conn string) ([]string, error) {
		if _, err := admin.UpdateTenant(ctx, tn.ID, tenant.UpdateRequest{Name: "Acme Renamed", Notes: "edited mid-run"}); err != nil {
			return nil, err
		}
		if _, err := admin.ChangeStatus(ctx, tn.ID, tenant.StatusDisabled); err != nil {
			return nil, err
		}
		return e.migrator.Apply(ctx, conn)
	})

	_, err := e.service(interfering).Provision(ctx, tn)
	require.NoError(t, err)

	stored, err := e.repo.GetByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusDisabled, stored.Status)
	assert.Nil(t, stored.ActivatedAt)
	assert.Equal(t, "Acme Renamed", stored.Name)
	assert.Equal(t, "edited mid-run", stored.Notes)
	assert.NotNil(t, stored.ProvisionedAt)
	assert.NotEmpty(t, stored.ConnectionString)
	assert.Equal(t, tenant.StatusDisabled, tn.Status, "the caller sees the stored status")
}

// TestPurpose: Validates database name derivation for slugs at the identifier limit.
// Scope: Unit Test
// Expected: Maximum-length slugs get a 63-character name, a colliding one gets a suffixed name of the same length, and a leading digit is prefixed with an underscore.
// Test Case ID: PRV-SVC-10
func TestService_Provision_LongAndNumericSlugs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := e.service(nil)

	first := e.register(t, strings.Repeat("a", 62)+"b")
	second := e.register(t, strings.Repeat("a", 62)+"c")

	r1, err := svc.Provision(ctx, first)
	require.NoError(t, err)
	assert.Len(t, r1.DatabaseName, 63)
	assert.True(t, strings.HasPrefix(r1.DatabaseName, "tenant_aaa"))

	r2, err := svc.Provision(ctx, second)
	require.NoError(t, err)
	assert.Len(t, r2.DatabaseName, 63)
	assert.True(t, strings.HasSuffix(r2.DatabaseName, "_2"))
	assert.NotEqual(t, r1.DatabaseName, r2.DatabaseName)

	e.cfg.DatabasePrefix = ""
	numeric := e.register(t, "123-shop")
	r3, err := e.service(nil).Provision(ctx, numeric)
	require.NoError(t, err)
	assert.Equal(t, "_123_shop", r3.DatabaseName)
}

// TestPurpose: Validates that long failure messages are stored as valid text.
// Scope: Unit Test
// Expected: The recorded provisioning error is cut to the length limit on a character boundary.
// Test Case ID: PRV-SVC-11
func TestService_Provision_LongFailureMessage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.register(t, "acme")

	boom := errors.New(strings.Repeat("DatabaseName 'x' já está em uso. ", 60))
	failing := e.service(migratorFunc(func(context.Context, string) ([]string, error) { return nil, boom }))
	_, err := failing.Provision(ctx, tn)
	require.Error(t, err)

	stored, err := e.repo.GetByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ProvisioningError)
	assert.LessOrEqual(t, len(stored.ProvisioningError), maxErrorLength)
	assert.True(t, utf8.ValidString(stored.ProvisioningError))

	assert.Equal(t, "aaaaaaaaa", truncateUTF8(strings.Repeat("a", 9)+"é", 10))
	assert.Equal(t, "abc", truncateUTF8("abc", 10))
}

// TestPurpose: Validates provisioning against a database managed outside the system.
// Scope: Unit Test
// Expected: No database is created, the external connection string becomes the tenant's connection string, and the tenant is migrated, seeded and activated.
// Test Case ID: PRV-SVC-12
func TestService_Provision_ExternalDatabase(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	external := filepath.Join(t.TempDir(), "external.db")

	tn := &tenant.Tenant{Name: "byo", Slug: "byo", Status: tenant.StatusProvisioning, ExternalConnectionString: external}
	require.NoError(t, e.repo.Create(ctx, tn))

	report, err := e.service(nil).Provision(ctx, tn)
	require.NoError(t, err)
	assert.False(t, report.DatabaseCreated)
	assert.True(t, report.AdminCreated)

	stored, err := e.repo.GetByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, external, stored.ConnectionString)
	assert.Equal(t, "tenant_byo", stored.DatabaseName)
	assert.Equal(t, tenant.StatusActive, stored.Status)
}
