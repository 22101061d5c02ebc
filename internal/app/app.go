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


// Package app assembles the control plane from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opentrusty/tenancy/internal/audit"
	"github.com/opentrusty/tenancy/internal/config"
	"github.com/opentrusty/tenancy/internal/identity"
	"github.com/opentrusty/tenancy/internal/observability/logger"
	"github.com/opentrusty/tenancy/internal/observability/metrics"
	"github.com/opentrusty/tenancy/internal/observability/tracing"
	"github.com/opentrusty/tenancy/internal/provisioning"
	"github.com/opentrusty/tenancy/internal/store/postgres"
	"github.com/opentrusty/tenancy/internal/tenant"
	"github.com/opentrusty/tenancy/internal/tenantdb"
)

// App holds the wired components
type App struct {
	Config       *config.Config
	DB           *postgres.DB
	Tenants      *postgres.TenantRepository
	Memberships  *postgres.MembershipRepository
	Resolver     *tenantdb.Resolver
	Router       *tenantdb.Router
	Migrator     *tenantdb.Migrator
	Seeder       *tenantdb.Seeder
	Directory    *tenantdb.Directory
	Provisioning *provisioning.Service
	TenantSvc    *tenant.Service
	Tracer       *tracing.Tracer
}

// DatabaseConfig maps the control-plane settings onto the store config
func DatabaseConfig(cfg *config.Config) postgres.Config {
	return postgres.Config{
		URL:          cfg.Database.URL,
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	}
}

// BaselineRoles converts configured roles into seed specs. nil keeps the defaults.
func BaselineRoles(roles []config.BaselineRole) []tenantdb.RoleSpec {
	if len(roles) == 0 {
		return nil
	}
	out := make([]tenantdb.RoleSpec, len(roles))
	for i, r := range roles {
		out[i] = tenantdb.RoleSpec{Name: r.Name, Permissions: r.Permissions}
	}
	return out
}

// New connects to the control plane, applies its migrations and wires
// every component. Close releases what New acquired.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		TenantDriver:   cfg.Provisioning.Driver,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
		tracer = tracing.Noop()
	}

	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize meter: %w", err)
	}
	provisioningMetrics, err := metrics.NewProvisioning(meter)
	if err != nil {
		return nil, err
	}

	db, err := postgres.New(ctx, DatabaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		Config:      cfg,
		DB:          db,
		Tenants:     postgres.NewTenantRepository(db),
		Memberships: postgres.NewMembershipRepository(db),
		Tracer:      tracer,
	}

	a.Resolver = tenantdb.NewResolver(a.Tenants, cfg.TenantDB.RouteCacheTTL)
	a.Router = tenantdb.NewRouter(tenantdb.Config{
		Driver:          cfg.Provisioning.Driver,
		MaxOpenConns:    cfg.TenantDB.MaxOpenConns,
		MaxIdleConns:    cfg.TenantDB.MaxIdleConns,
		ConnMaxLifetime: cfg.TenantDB.ConnMaxLifetime,
		SlowThreshold:   cfg.TenantDB.SlowThreshold,
	}, a.Resolver)
	a.Migrator = tenantdb.NewMigrator(a.Router)

	hasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	a.Seeder = tenantdb.NewSeeder(a.Router, hasher, BaselineRoles(cfg.Provisioning.BaselineRoles))
	a.Directory = tenantdb.NewDirectory(a.Router)

	creator, err := provisioning.NewCreator(cfg.Provisioning.Driver)
	if err != nil {
		db.Close()
		return nil, err
	}

	auditLogger := audit.NewSlogLogger()
	a.Provisioning = provisioning.NewService(
		provisioning.Config{
			TemplateConnectionString: cfg.Provisioning.TemplateConnectionString,
			AdminDatabase:            cfg.Provisioning.AdminDatabase,
			DatabasePrefix:           cfg.Provisioning.DatabasePrefix,
			AutoActivateTenants:      cfg.Provisioning.AutoActivateTenants,
			DefaultAdminPassword:     cfg.Provisioning.DefaultAdminPassword,
			AdminEmailDomain:         cfg.Provisioning.AdminEmailDomain,
			Timeout:                  cfg.Provisioning.Timeout,
		},
		a.Tenants,
		creator,
		a.Migrator,
		a.Seeder,
		auditLogger,
		provisioning.WithTracer(tracer),
		provisioning.WithMetrics(provisioningMetrics),
	)
	a.TenantSvc = tenant.NewService(a.Tenants, a.Memberships, a.Provisioning, a.Resolver, auditLogger)

	return a, nil
}

// Close releases the database pool and flushes traces
func (a *App) Close(ctx context.Context) {
	if err := a.Tracer.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to shutdown tracer", logger.Error(err))
	}
	a.DB.Close()
}
