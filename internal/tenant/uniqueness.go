package tenant

import (
	"context"
	"fmt"
)

// UniquenessValidator checks slug and database name availability before any
// side effect happens. It is advisory: two callers can both pass the check, and
// the registry's unique indexes decide which insert wins.
type UniquenessValidator struct {
	repo Repository
}

// NewUniquenessValidator creates a new uniqueness validator
func NewUniquenessValidator(repo Repository) *UniquenessValidator {
	return &UniquenessValidator{repo: repo}
}

// Check fails with *ConflictError when slug or databaseName is used by a
// non-archived tenant other than excludeID. Empty values are skipped.
func (v *UniquenessValidator) Check(ctx context.Context, slug, databaseName string, excludeID int64) error {
	if slug != "" {
		if err := v.CheckSlug(ctx, slug, excludeID); err != nil {
			return err
		}
	}
	if databaseName != "" {
		if err := v.CheckDatabaseName(ctx, databaseName, excludeID); err != nil {
			return err
		}
	}
	return nil
}

// CheckSlug fails with *ConflictError when slug is taken
func (v *UniquenessValidator) CheckSlug(ctx context.Context, slug string, excludeID int64) error {
	slug = NormalizeSlug(slug)
	exists, err := v.repo.ExistsSlug(ctx, slug, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check slug uniqueness: %w", err)
	}
	if exists {
		return &ConflictError{Field: FieldSlug, Value: slug}
	}
	return nil
}

// CheckDatabaseName fails with *ConflictError when name is taken
func (v *UniquenessValidator) CheckDatabaseName(ctx context.Context, name string, excludeID int64) error {
	name = NormalizeDatabaseName(name)
	exists, err := v.repo.ExistsDatabaseName(ctx, name, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check database name uniqueness: %w", err)
	}
	if exists {
		return &ConflictError{Field: FieldDatabaseName, Value: name}
	}
	return nil
}
