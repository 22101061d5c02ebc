// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package provisioning turns a registered tenant into a tenant with its own
// migrated and seeded database.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/opentrusty/tenancy/internal/audit"
	"github.com/opentrusty/tenancy/internal/identity"
	"github.com/opentrusty/tenancy/internal/observability/logger"
	"github.com/opentrusty/tenancy/internal/observability/metrics"
	"github.com/opentrusty/tenancy/internal/observability/tracing"
	"github.com/opentrusty/tenancy/internal/tenant"
	"github.com/opentrusty/tenancy/internal/tenantdb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Provisioning steps, in execution order
const (
	StepAllocate = "allocate_database"
	StepCreate   = "create_database"
	StepMigrate  = "migrate"
	StepSeed     = "seed"
	StepActivate = "activate"
)

const (
	maxNameAttempts   = 20
	maxErrorLength    = 1000
	generatedPassword = 16
)

// ErrAlreadyRunning is returned when the tenant is already being provisioned by this process
var ErrAlreadyRunning = errors.New("provisioning already running for tenant")

// Error reports the step at which provisioning stopped. Every step is
// idempotent, so provisioning can always be retried.
type Error struct {
	TenantID int64
	Step     string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provisioning tenant %d failed at %s: %v", e.TenantID, e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether running provisioning again may succeed
func (e *Error) Retryable() bool { return true }

// Config holds provisioning settings
type Config struct {
	// TemplateConnectionString contains the {DB} placeholder
	TemplateConnectionString string
	// AdminDatabase is the maintenance database used to issue CREATE DATABASE
	AdminDatabase        string
	DatabasePrefix       string
	AutoActivateTenants  bool
	DefaultAdminPassword string
	AdminEmailDomain     string
	Timeout              time.Duration
}

// SchemaMigrator applies tenant schema migrations
type SchemaMigrator interface {
	Apply(ctx context.Context, connectionString string) ([]string, error)
}

// Seeder seeds baseline data into a tenant database
type Seeder interface {
	Seed(ctx context.Context, scope tenantdb.Scope, admin tenantdb.AdminContact) (*tenantdb.SeedResult, error)
}

// Outcome is delivered by ProvisionAsync
type Outcome = tenant.ProvisionOutcome

// Service runs the provisioning pipeline
type Service struct {
	cfg         Config
	repo        tenant.Repository
	creator     DatabaseCreator
	migrator    SchemaMigrator
	seeder      Seeder
	auditLogger audit.Logger
	tracer      *tracing.Tracer
	metrics     *metrics.Provisioning
	passwords   func() (string, error)
	now         func() time.Time

	inflight sync.Map
}

// Option configures a Service
type Option func(*Service)

// WithTracer sets the tracer used for step spans
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithMetrics sets the provisioning instruments
func WithMetrics(m *metrics.Provisioning) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPasswordGenerator replaces the initial admin password generator
func WithPasswordGenerator(fn func() (string, error)) Option {
	return func(s *Service) { s.passwords = fn }
}

// NewService creates a new provisioning service
func NewService(
	cfg Config,
	repo tenant.Repository,
	creator DatabaseCreator,
	migrator SchemaMigrator,
	seeder Seeder,
	auditLogger audit.Logger,
	opts ...Option,
) *Service {
	if cfg.AdminDatabase == "" {
		cfg.AdminDatabase = "postgres"
	}
	if cfg.AdminEmailDomain == "" {
		cfg.AdminEmailDomain = "tenants.local"
	}
	s := &Service{
		cfg:         cfg,
		repo:        repo,
		creator:     creator,
		migrator:    migrator,
		seeder:      seeder,
		auditLogger: auditLogger,
		tracer:      tracing.Noop(),
		metrics:     metrics.NoopProvisioning(),
		passwords:   func() (string, error) { return identity.GeneratePassword(generatedPassword) },
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provision runs every step for t, updating t in place and persisting progress
// after each step that changes it. On failure the tenant stays in
// provisioning status and the returned *Error names the failed step.
func (s *Service) Provision(ctx context.Context, t *tenant.Tenant) (*tenant.ProvisionReport, error) {
	if _, loaded := s.inflight.LoadOrStore(t.ID, struct{}{}); loaded {
		return nil, ErrAlreadyRunning
	}
	defer s.inflight.Delete(t.ID)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, "tenant.provision", trace.WithAttributes(
		attribute.Int64("tenant.id", t.ID),
		attribute.String("tenant.slug", t.Slug),
	))
	start := time.Now()
	s.metrics.Started(ctx)

	slog.InfoContext(ctx, "provisioning tenant", logger.TenantID(t.ID), logger.Slug(t.Slug))

	report, step, err := s.run(ctx, t)

	s.metrics.Finished(ctx, time.Since(start), step)
	if err != nil {
		perr := &Error{TenantID: t.ID, Step: step, Err: err}
		tracing.End(span, perr)
		s.recordFailure(ctx, t, perr)
		return nil, perr
	}
	tracing.End(span, nil)

	slog.InfoContext(ctx, "tenant provisioned",
		logger.TenantID(t.ID),
		logger.DatabaseName(t.DatabaseName),
		logger.Elapsed(time.Since(start)),
	)
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantProvisioned,
		TenantID: t.ID,
		Resource: audit.ResourceTenant,
		Metadata: map[string]any{
			audit.AttrDatabaseName: t.DatabaseName,
			audit.AttrStatusTo:     string(t.Status),
		},
	})
	return report, nil
}

// ProvisionAsync runs Provision in the background. The run is detached from
// ctx cancellation so it outlives the request that started it. The channel
// receives exactly one outcome.
func (s *Service) ProvisionAsync(ctx context.Context, t *tenant.Tenant) <-chan Outcome {
	out := make(chan Outcome, 1)
	bg := context.WithoutCancel(ctx)
	go func() {
		defer close(out)
		report, err := s.Provision(bg, t)
		out <- Outcome{Report: report, Err: err}
	}()
	return out
}

// IsRunning reports whether tenantID is being provisioned by this process
func (s *Service) IsRunning(tenantID int64) bool {
	_, ok := s.inflight.Load(tenantID)
	return ok
}

func (s *Service) run(ctx context.Context, t *tenant.Tenant) (*tenant.ProvisionReport, string, error) {
	report := &tenant.ProvisionReport{}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StepAllocate, func(ctx context.Context) error { return s.allocate(ctx, t) }},
		{StepCreate, func(ctx context.Context) error { return s.createDatabase(ctx, t, report) }},
		{StepMigrate, func(ctx context.Context) error { return s.migrate(ctx, t, report) }},
		{StepSeed, func(ctx context.Context) error { return s.seed(ctx, t, report) }},
		{StepActivate, func(ctx context.Context) error { return s.activate(ctx, t) }},
	}

	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return nil, st.name, err
		}
		stepCtx, span := s.tracer.Start(ctx, "tenant.provision."+st.name)
		err := st.fn(stepCtx)
		tracing.End(span, err)
		if err != nil {
			return nil, st.name, err
		}
		slog.DebugContext(ctx, "provisioning step done", logger.TenantID(t.ID), logger.Step(st.name))
	}

	report.DatabaseName = t.DatabaseName
	return report, "", nil
}

// allocate assigns a database name when the tenant has none. Collisions are
// resolved by numeric suffixes; the unique index arbitrates concurrent claims.
func (s *Service) allocate(ctx context.Context, t *tenant.Tenant) error {
	if t.DatabaseName != "" {
		return tenant.ValidateDatabaseName(t.DatabaseName)
	}

	base := tenant.DeriveDatabaseName(s.cfg.DatabasePrefix, t.Slug)
	for i := 1; i <= maxNameAttempts; i++ {
		candidate := tenant.DatabaseNameCandidate(base, i)
		if err := tenant.ValidateDatabaseName(candidate); err != nil {
			return err
		}

		taken, err := s.repo.ExistsDatabaseName(ctx, candidate, t.ID)
		if err != nil {
			return fmt.Errorf("failed to check database name: %w", err)
		}
		if taken {
			continue
		}

		t.DatabaseName = candidate
		t.UpdatedAt = s.now()
		err = s.repo.SaveProvisioning(ctx, t)
		if err == nil {
			return nil
		}
		t.DatabaseName = ""
		if !errors.Is(err, tenant.ErrConflict) {
			return fmt.Errorf("failed to persist database name: %w", err)
		}
	}
	return fmt.Errorf("no free database name for %q after %d attempts", base, maxNameAttempts)
}

func (s *Service) createDatabase(ctx context.Context, t *tenant.Tenant, report *tenant.ProvisionReport) error {
	var derived string
	if s.cfg.TemplateConnectionString != "" {
		var err error
		derived, err = ResolveConnectionString(s.cfg.TemplateConnectionString, t.DatabaseName)
		if err != nil {
			return err
		}
	}

	conn := t.ExternalConnectionString
	if conn == "" {
		conn = t.ConnectionString
	}
	if conn == "" {
		if derived == "" {
			return errors.New("no connection string template configured")
		}
		conn = derived
	}

	// An external connection string points at a database managed elsewhere
	if conn == derived {
		admin, err := ResolveConnectionString(s.cfg.TemplateConnectionString, s.cfg.AdminDatabase)
		if err != nil {
			return fmt.Errorf("invalid admin database: %w", err)
		}
		created, err := s.creator.EnsureDatabase(ctx, Target{
			AdminConnectionString: admin,
			ConnectionString:      conn,
			DatabaseName:          t.DatabaseName,
		})
		if err != nil {
			return err
		}
		report.DatabaseCreated = created
		if created {
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeDatabaseCreated,
				TenantID: t.ID,
				Resource: audit.ResourceDatabase,
				Metadata: map[string]any{audit.AttrDatabaseName: t.DatabaseName},
			})
		}
	}

	if t.ConnectionString == conn {
		return nil
	}
	previous := t.ConnectionString
	t.ConnectionString = conn
	t.UpdatedAt = s.now()
	if err := s.repo.SaveProvisioning(ctx, t); err != nil {
		t.ConnectionString = previous
		return fmt.Errorf("failed to persist connection string: %w", err)
	}
	return nil
}

func (s *Service) migrate(ctx context.Context, t *tenant.Tenant, report *tenant.ProvisionReport) error {
	applied, err := s.migrator.Apply(ctx, t.ConnectionString)
	if err != nil {
		return err
	}
	report.MigrationsApplied = applied
	if len(applied) > 0 {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeMigrationsApplied,
			TenantID: t.ID,
			Resource: audit.ResourceDatabase,
			Metadata: map[string]any{audit.AttrMigrations: applied},
		})
	}
	return nil
}

func (s *Service) seed(ctx context.Context, t *tenant.Tenant, report *tenant.ProvisionReport) error {
	email := t.PrimaryContactEmail
	if email == "" {
		email = fmt.Sprintf("admin@%s.%s", t.Slug, s.cfg.AdminEmailDomain)
	}

	password := s.cfg.DefaultAdminPassword
	generated := false
	if password == "" {
		var err error
		if password, err = s.passwords(); err != nil {
			return err
		}
		generated = true
	}

	res, err := s.seeder.Seed(ctx, tenantdb.Scope{
		TenantID:         t.ID,
		Slug:             t.Slug,
		ConnectionString: t.ConnectionString,
	}, tenantdb.AdminContact{
		Email:    email,
		FullName: t.PrimaryContactName,
		Password: password,
	})
	if err != nil {
		return err
	}

	report.RolesCreated = res.RolesCreated
	report.AdminEmail = email
	report.AdminCreated = res.AdminCreated
	if res.AdminCreated && generated {
		report.InitialAdminPassword = password
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantSeeded,
		TenantID: t.ID,
		Resource: audit.ResourceDatabase,
		Metadata: map[string]any{
			"roles_created": res.RolesCreated,
			"admin_created": res.AdminCreated,
		},
	})
	return nil
}

// activate marks t provisioned and, when configured, activates it. The status
// change is conditional on the stored status so an administrator who disabled
// or archived the tenant during the run keeps the last word.
func (s *Service) activate(ctx context.Context, t *tenant.Tenant) error {
	now := s.now()
	if t.ProvisionedAt == nil {
		t.ProvisionedAt = &now
	}
	t.ProvisioningError = ""
	t.UpdatedAt = now
	if err := s.repo.SaveProvisioning(ctx, t); err != nil {
		return fmt.Errorf("failed to mark tenant provisioned: %w", err)
	}

	if s.cfg.AutoActivateTenants {
		if _, err := s.repo.ActivateProvisioned(ctx, t.ID, now); err != nil {
			return err
		}
	}

	current, err := s.repo.GetByID(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("failed to reload tenant: %w", err)
	}
	t.Status = current.Status
	t.ActivatedAt = current.ActivatedAt
	t.SuspendedAt = current.SuspendedAt
	t.DeletedAt = current.DeletedAt
	return nil
}

// recordFailure persists the failure on the tenant. It is best effort: the
// original error is what the caller sees.
func (s *Service) recordFailure(ctx context.Context, t *tenant.Tenant, perr *Error) {
	slog.ErrorContext(ctx, "tenant provisioning failed",
		logger.TenantID(t.ID),
		logger.Slug(t.Slug),
		logger.Step(perr.Step),
		logger.Error(perr.Err),
	)

	msg := truncateUTF8(perr.Error(), maxErrorLength)

	bg := context.WithoutCancel(ctx)
	previous := t.ProvisioningError
	t.ProvisioningError = msg
	t.UpdatedAt = s.now()
	if err := s.repo.SaveProvisioning(bg, t); err != nil {
		t.ProvisioningError = previous
		slog.WarnContext(ctx, "failed to record provisioning error", logger.TenantID(t.ID), logger.Error(err))
	}

	s.auditLogger.Log(bg, audit.Event{
		Type:     audit.TypeProvisioningFailed,
		TenantID: t.ID,
		Resource: audit.ResourceTenant,
		Metadata: map[string]any{
			audit.AttrStep:  perr.Step,
			audit.AttrError: perr.Err.Error(),
		},
	})
}

// truncateUTF8 cuts s to at most n bytes without splitting a character
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
