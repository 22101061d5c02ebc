package provisioning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opentrusty/tenancy/internal/tenant"
)

// Target describes the database to create
type Target struct {
	// AdminConnectionString reaches a maintenance database on the same server
	AdminConnectionString string
	// ConnectionString reaches the tenant database itself
	ConnectionString string
	DatabaseName     string
}

// DatabaseCreator creates a tenant database if it does not exist yet
type DatabaseCreator interface {
	EnsureDatabase(ctx context.Context, target Target) (created bool, err error)
}

// pgDuplicateDatabase is the SQLSTATE for duplicate_database
const pgDuplicateDatabase = "42P04"

// PostgresCreator creates databases with CREATE DATABASE over the admin connection
type PostgresCreator struct{}

// EnsureDatabase implements DatabaseCreator
func (PostgresCreator) EnsureDatabase(ctx context.Context, target Target) (bool, error) {
	if err := tenant.ValidateDatabaseName(target.DatabaseName); err != nil {
		return false, err
	}
	if target.AdminConnectionString == "" {
		return false, errors.New("admin connection string is required to create databases")
	}

	conn, err := pgx.Connect(ctx, target.AdminConnectionString)
	if err != nil {
		return false, fmt.Errorf("failed to connect to admin database: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	var exists bool
	if err := conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, target.DatabaseName,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check database existence: %w", err)
	}
	if exists {
		return false, nil
	}

	// CREATE DATABASE cannot take bind parameters; the name is validated and quoted
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{target.DatabaseName}.Sanitize()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateDatabase {
			return false, nil
		}
		return false, fmt.Errorf("failed to create database: %w", err)
	}
	return true, nil
}

// SQLiteCreator creates the database file named by the connection string
type SQLiteCreator struct{}

// EnsureDatabase implements DatabaseCreator
func (SQLiteCreator) EnsureDatabase(_ context.Context, target Target) (bool, error) {
	path := sqlitePath(target.ConnectionString)
	if path == "" || path == ":memory:" {
		return false, nil
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return false, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("failed to close database file: %w", err)
	}
	return true, nil
}

// sqlitePath extracts the file path from a sqlite DSN
func sqlitePath(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		dsn = dsn[:i]
	}
	return dsn
}

// NewCreator returns the creator for driver
func NewCreator(driver string) (DatabaseCreator, error) {
	switch strings.ToLower(driver) {
	case "", "postgres":
		return PostgresCreator{}, nil
	case "sqlite":
		return SQLiteCreator{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
