package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/opentrusty/tenancy/internal/authz"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	TenantDB      TenantDBConfig
	Provisioning  ProvisioningConfig
	Admin         AdminConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	IdleTimeout       time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DatabaseConfig holds control-plane database configuration
type DatabaseConfig struct {
	// URL, when set, takes precedence over the discrete fields
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// TenantDBConfig holds the pool settings of routed tenant database handles
type TenantDBConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
	RouteCacheTTL   time.Duration
}

// BaselineRole is a role seeded into every new tenant database
type BaselineRole struct {
	Name        string
	Permissions []string
}

// ProvisioningConfig holds tenant database provisioning configuration
type ProvisioningConfig struct {
	Driver                   string
	TemplateConnectionString string
	AdminDatabase            string
	DatabasePrefix           string
	AutoActivateTenants      bool
	DefaultAdminPassword     string
	AdminEmailDomain         string
	BaselineRoles            []BaselineRole
	Timeout                  time.Duration
}

// AdminConfig holds admin API configuration
type AdminConfig struct {
	APIKey string
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// SecurityConfig holds password hashing configuration for seeded accounts
type SecurityConfig struct {
	Argon2Memory      uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
	Argon2SaltLength  uint32
	Argon2KeyLength   uint32
}

// LoadDotEnv loads variables from the given files, or .env when none is
// given. Variables already set in the environment win. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	roles, err := ParseBaselineRoles(os.Getenv("PROVISIONING_BASELINE_ROLES"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:   parseDuration("SERVER_WRITE_TIMEOUT", "5m"),
			IdleTimeout:    parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			RequestTimeout: parseDuration("SERVER_REQUEST_TIMEOUT", "5m"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "tenancy"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "tenancy"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		TenantDB: TenantDBConfig{
			MaxOpenConns:    parseInt("TENANTDB_MAX_OPEN_CONNS", 5),
			MaxIdleConns:    parseInt("TENANTDB_MAX_IDLE_CONNS", 1),
			ConnMaxLifetime: parseDuration("TENANTDB_CONN_MAX_LIFETIME", "1m"),
			SlowThreshold:   parseDuration("TENANTDB_SLOW_THRESHOLD", "200ms"),
			RouteCacheTTL:   parseDuration("TENANTDB_ROUTE_CACHE_TTL", "30s"),
		},
		Provisioning: ProvisioningConfig{
			Driver:                   strings.ToLower(getEnv("PROVISIONING_DRIVER", "postgres")),
			TemplateConnectionString: getEnv("PROVISIONING_TEMPLATE_CONNECTION_STRING", ""),
			AdminDatabase:            getEnv("PROVISIONING_ADMIN_DATABASE", "postgres"),
			DatabasePrefix:           getEnv("PROVISIONING_DATABASE_PREFIX", "tenant_"),
			AutoActivateTenants:      parseBool("PROVISIONING_AUTO_ACTIVATE_TENANTS", true),
			DefaultAdminPassword:     getEnv("PROVISIONING_DEFAULT_ADMIN_PASSWORD", ""),
			AdminEmailDomain:         getEnv("PROVISIONING_ADMIN_EMAIL_DOMAIN", "tenants.local"),
			BaselineRoles:            roles,
			Timeout:                  parseDuration("PROVISIONING_TIMEOUT", "5m"),
		},
		Admin: AdminConfig{
			APIKey: getEnv("ADMIN_API_KEY", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "tenancy"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		Security: SecurityConfig{
			Argon2Memory:      uint32(parseInt("ARGON2_MEMORY", 65536)),
			Argon2Iterations:  uint32(parseInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism: uint8(parseInt("ARGON2_PARALLELISM", 4)),
			Argon2SaltLength:  uint32(parseInt("ARGON2_SALT_LENGTH", 16)),
			Argon2KeyLength:   uint32(parseInt("ARGON2_KEY_LENGTH", 32)),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: parseFloat("RATELIMIT_RPS", 10),
			Burst:             parseInt("RATELIMIT_BURST", 20),
			IdleTimeout:       parseDuration("RATELIMIT_IDLE_TIMEOUT", "10m"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" && c.Database.Password == "" {
		return fmt.Errorf("DATABASE_URL or DB_PASSWORD is required")
	}
	switch c.Provisioning.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("PROVISIONING_DRIVER must be postgres or sqlite, got %q", c.Provisioning.Driver)
	}
	if t := c.Provisioning.TemplateConnectionString; t != "" && strings.Count(t, "{DB}") != 1 {
		return fmt.Errorf("PROVISIONING_TEMPLATE_CONNECTION_STRING must contain {DB} exactly once")
	}
	if p := c.Provisioning.DefaultAdminPassword; p != "" && len(p) < 12 {
		return fmt.Errorf("PROVISIONING_DEFAULT_ADMIN_PASSWORD must be at least 12 characters")
	}
	if c.TenantDB.MaxOpenConns < 1 {
		return fmt.Errorf("TENANTDB_MAX_OPEN_CONNS must be positive")
	}
	return nil
}

// ParseBaselineRoles parses "Name:perm1|perm2,Other:perm3". An empty value
// yields nil so the built-in roles apply.
func ParseBaselineRoles(value string) ([]BaselineRole, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	var roles []BaselineRole
	seen := make(map[string]bool)
	for _, item := range strings.Split(value, ",") {
		name, perms, _ := strings.Cut(strings.TrimSpace(item), ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("PROVISIONING_BASELINE_ROLES: empty role name in %q", item)
		}
		key := strings.ToUpper(name)
		if seen[key] {
			return nil, fmt.Errorf("PROVISIONING_BASELINE_ROLES: duplicate role %q", name)
		}
		seen[key] = true

		role := BaselineRole{Name: name}
		for _, p := range strings.Split(perms, "|") {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			if err := authz.ValidateGrant(p); err != nil {
				return nil, fmt.Errorf("PROVISIONING_BASELINE_ROLES: role %q: %w", name, err)
			}
			role.Permissions = append(role.Permissions, p)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
