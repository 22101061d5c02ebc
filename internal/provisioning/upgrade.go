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


package provisioning

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opentrusty/tenancy/internal/observability/logger"
	"github.com/opentrusty/tenancy/internal/tenant"
	"golang.org/x/sync/errgroup"
)

// TenantLister lists tenants whose database exists
type TenantLister interface {
	ListProvisioned(ctx context.Context) ([]*tenant.Tenant, error)
}

// UpgradeResult is the outcome of migrating one tenant database
type UpgradeResult struct {
	TenantID int64
	Slug     string
	Applied  []string
	Err      error
}

// UpgradeAll brings every provisioned tenant database to the latest schema,
// running at most concurrency migrations at a time. A failing tenant does
// not stop the others; its error is reported in its result.
func UpgradeAll(ctx context.Context, lister TenantLister, migrator SchemaMigrator, concurrency int) ([]UpgradeResult, error) {
	tenants, err := lister.ListProvisioned(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list provisioned tenants: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]UpgradeResult, len(tenants))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, t := range tenants {
		results[i] = UpgradeResult{TenantID: t.ID, Slug: t.Slug}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			applied, err := migrator.Apply(ctx, t.ConnectionString)
			results[i].Applied = applied
			if err != nil {
				results[i].Err = err
				slog.ErrorContext(ctx, "tenant migration failed",
					logger.TenantID(t.ID),
					logger.Slug(t.Slug),
					logger.Error(err),
				)
				return nil
			}
			if len(applied) > 0 {
				slog.InfoContext(ctx, "tenant migrated",
					logger.TenantID(t.ID),
					logger.Slug(t.Slug),
					slog.Int("applied", len(applied)),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}
