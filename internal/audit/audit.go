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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypeTenantCreated        = "tenant_created"
	TypeTenantUpdated        = "tenant_updated"
	TypeTenantStatusChanged  = "tenant_status_changed"
	TypeDatabaseCreated      = "tenant_database_created"
	TypeMigrationsApplied    = "tenant_migrations_applied"
	TypeTenantSeeded         = "tenant_seeded"
	TypeTenantProvisioned    = "tenant_provisioned"
	TypeProvisioningFailed   = "tenant_provisioning_failed"
	TypeMembershipAdded      = "membership_added"
	TypeMembershipRevoked    = "membership_revoked"
	TypeDefaultTenantChanged = "default_tenant_changed"
)

// Resources
const (
	ResourceTenant     = "tenant"
	ResourceDatabase   = "tenant_database"
	ResourceMembership = "tenant_membership"
)

// Metadata keys
const (
	AttrSlug         = "slug"
	AttrDatabaseName = "database_name"
	AttrStatusFrom   = "status_from"
	AttrStatusTo     = "status_to"
	AttrStep         = "step"
	AttrUserID       = "user_id"
	AttrError        = "error"
	AttrMigrations   = "migrations"
)

// Event represents an auditable action
type Event struct {
	Type      string
	TenantID  int64
	ActorID   string
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger writing to the default slog logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// NewSlogLoggerWith creates an audit logger writing to l
func NewSlogLoggerWith(l *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: l}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.Int64("tenant_id", event.TenantID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.ActorID != "" {
		attrs = append(attrs, slog.String("actor_id", event.ActorID))
	}

	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	lg := l.logger
	if lg == nil {
		lg = slog.Default()
	}
	lg.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

var secretMarkers = []string{"password", "secret", "token", "key", "authorization", "hash", "credential", "connection_string"}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretMarkers {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Nop discards every event
type Nop struct{}

func (Nop) Log(context.Context, Event) {}
