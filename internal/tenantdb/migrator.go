package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/opentrusty/tenancy/internal/observability/logger"
	"gorm.io/gorm"
)

// Migration is one versioned change to the tenant schema
type Migration struct {
	Version string
	Name    string
	Up      func(*gorm.DB) error
}

// Migrator brings tenant databases to the latest schema version
type Migrator struct {
	router     *Router
	migrations []Migration
}

// NewMigrator creates a migrator for migrations, or for Migrations() when none are given
func NewMigrator(router *Router, migrations ...Migration) *Migrator {
	if len(migrations) == 0 {
		migrations = Migrations()
	}
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Migrator{router: router, migrations: sorted}
}

// Apply runs every pending migration against the database at connectionString
// and returns the versions it applied.
func (m *Migrator) Apply(ctx context.Context, connectionString string) ([]string, error) {
	h, err := m.router.Open(ctx, connectionString)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	return m.ApplyTo(ctx, h.DB())
}

// ApplyTo runs every pending migration on db. Each migration commits together
// with its history row, so a cancelled run never records a partial migration.
func (m *Migrator) ApplyTo(ctx context.Context, db *gorm.DB) ([]string, error) {
	if err := m.check(); err != nil {
		return nil, err
	}

	applied, err := m.appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, mig := range m.migrations {
		if applied[mig.Version] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return done, fmt.Errorf("migration cancelled before %s: %w", mig.Version, err)
		}

		start := time.Now()
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mig.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				Version:   mig.Version,
				Name:      mig.Name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			// Another runner may have applied the same version concurrently
			if ok, _ := m.isApplied(ctx, db, mig.Version); ok {
				continue
			}
			return done, fmt.Errorf("failed to apply migration %s_%s: %w", mig.Version, mig.Name, err)
		}

		slog.InfoContext(ctx, "applied tenant migration",
			logger.MigrationVersion(mig.Version),
			logger.String("name", mig.Name),
			logger.Elapsed(time.Since(start)),
		)
		done = append(done, mig.Version)
	}

	return done, nil
}

// Pending lists migrations not yet applied to the database at connectionString
func (m *Migrator) Pending(ctx context.Context, connectionString string) ([]Migration, error) {
	h, err := m.router.Open(ctx, connectionString)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	applied, err := m.appliedVersions(ctx, h.DB())
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, mig := range m.migrations {
		if !applied[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// History returns the applied migrations of the database at connectionString
func (m *Migrator) History(ctx context.Context, connectionString string) ([]MigrationRecord, error) {
	h, err := m.router.Open(ctx, connectionString)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	db := h.DB().WithContext(ctx)
	if err := db.AutoMigrate(&MigrationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to ensure migration history table: %w", err)
	}

	var records []MigrationRecord
	if err := db.Order("version").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to read migration history: %w", err)
	}
	return records, nil
}

// Latest returns the newest known schema version
func (m *Migrator) Latest() string {
	if len(m.migrations) == 0 {
		return ""
	}
	return m.migrations[len(m.migrations)-1].Version
}

func (m *Migrator) check() error {
	seen := make(map[string]bool, len(m.migrations))
	for _, mig := range m.migrations {
		if mig.Version == "" || mig.Up == nil {
			return fmt.Errorf("invalid migration %q", mig.Name)
		}
		if seen[mig.Version] {
			return fmt.Errorf("duplicate migration version %s", mig.Version)
		}
		seen[mig.Version] = true
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context, db *gorm.DB) (map[string]bool, error) {
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&MigrationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to ensure migration history table: %w", err)
	}

	var records []MigrationRecord
	if err := db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to read migration history: %w", err)
	}

	versions := make(map[string]bool, len(records))
	for _, r := range records {
		versions[r.Version] = true
	}
	return versions, nil
}

func (m *Migrator) isApplied(ctx context.Context, db *gorm.DB, version string) (bool, error) {
	var rec MigrationRecord
	err := db.WithContext(ctx).Where("version = ?", version).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}
