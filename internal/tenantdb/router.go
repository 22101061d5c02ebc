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

package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opentrusty/tenancy/internal/observability/logger"
	"github.com/opentrusty/tenancy/internal/tenant"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	// ErrNoTenant is returned when a session is requested without a tenant
	ErrNoTenant = errors.New("no tenant in context")

	// ErrUnsupportedDriver is returned for an unknown driver name
	ErrUnsupportedDriver = errors.New("unsupported tenant database driver")
)

// Config holds tenant database connection settings
type Config struct {
	Driver          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
}

// Dialector returns the gorm dialector for driver and dsn
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case DriverPostgres, "":
		return postgres.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
}

// Handle is an open connection to one tenant database. It is never shared
// between requests; the caller closes it.
type Handle struct {
	db *gorm.DB
}

// DB returns the gorm handle bound to the caller's context
func (h *Handle) DB() *gorm.DB {
	return h.db
}

// Close releases the underlying connection pool
func (h *Handle) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql handle: %w", err)
	}
	return sqlDB.Close()
}

// Scope identifies the tenant and database a session is bound to
type Scope struct {
	TenantID         int64
	Slug             string
	ConnectionString string
}

// Session is a handle whose queries are restricted to a single tenant's rows
type Session struct {
	*Handle
	TenantID int64
}

// Router opens tenant database handles. It keeps no state per connection
// string, so every call yields an independent handle.
type Router struct {
	cfg      Config
	resolver *Resolver
}

// NewRouter creates a new router. resolver may be nil when SessionFor is not used.
func NewRouter(cfg Config, resolver *Resolver) *Router {
	if cfg.Driver == "" {
		cfg.Driver = DriverPostgres
	}
	return &Router{cfg: cfg, resolver: resolver}
}

// Driver returns the configured driver name
func (r *Router) Driver() string {
	return r.cfg.Driver
}

// Open connects to the database at connectionString
func (r *Router) Open(ctx context.Context, connectionString string) (*Handle, error) {
	if strings.TrimSpace(connectionString) == "" {
		return nil, fmt.Errorf("%w: empty connection string", tenant.ErrNotProvisioned)
	}

	dialector, err := Dialector(r.cfg.Driver, connectionString)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(slogWriter{}, gormlogger.Config{
			SlowThreshold:             r.slowThreshold(),
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	if r.cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(r.cfg.MaxOpenConns)
	}
	if r.cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(r.cfg.MaxIdleConns)
	}
	if r.cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(r.cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping tenant database: %w", err)
	}

	return &Handle{db: db.WithContext(ctx)}, nil
}

// Session opens a handle for scope with the tenant row filter installed
func (r *Router) Session(ctx context.Context, scope Scope) (*Session, error) {
	if scope.TenantID == 0 {
		return nil, ErrNoTenant
	}

	h, err := r.Open(ctx, scope.ConnectionString)
	if err != nil {
		return nil, err
	}
	if err := installTenantFilter(h.db, scope.TenantID); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("failed to install tenant filter: %w", err)
	}
	return &Session{Handle: h, TenantID: scope.TenantID}, nil
}

// SessionFor opens a session for the tenant carried by ctx
func (r *Router) SessionFor(ctx context.Context) (*Session, error) {
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, ErrNoTenant
	}
	if r.resolver == nil {
		return nil, errors.New("tenant resolver not configured")
	}

	scope, err := r.resolver.Resolve(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	return r.Session(ctx, scope)
}

func (r *Router) slowThreshold() time.Duration {
	if r.cfg.SlowThreshold > 0 {
		return r.cfg.SlowThreshold
	}
	return 200 * time.Millisecond
}

// slogWriter routes gorm's log lines to slog
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	slog.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), logger.Component("gorm"))
}
