package tenantdb

import (
	"context"
	"strconv"
	"time"

	"github.com/opentrusty/tenancy/internal/tenant"
	"github.com/viccon/sturdyc"
)

// TenantSource loads tenants from the control plane
type TenantSource interface {
	GetByID(ctx context.Context, id int64) (*tenant.Tenant, error)
}

// Resolver maps a tenant id to the database scope requests should use. Only
// active tenants with a database resolve. Results are cached briefly and
// dropped on Invalidate.
type Resolver struct {
	source TenantSource
	cache  *sturdyc.Client[Scope]
}

// NewResolver creates a resolver caching scopes for ttl
func NewResolver(source TenantSource, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{
		source: source,
		cache:  sturdyc.New[Scope](10000, 10, ttl, 10),
	}
}

// Resolve returns the scope of tenantID
func (r *Resolver) Resolve(ctx context.Context, tenantID int64) (Scope, error) {
	if tenantID == 0 {
		return Scope{}, ErrNoTenant
	}
	return r.cache.GetOrFetch(ctx, cacheKey(tenantID), func(ctx context.Context) (Scope, error) {
		t, err := r.source.GetByID(ctx, tenantID)
		if err != nil {
			return Scope{}, err
		}
		if t.Status != tenant.StatusActive {
			return Scope{}, tenant.ErrTenantNotActive
		}
		if !t.HasDatabase() {
			return Scope{}, tenant.ErrNotProvisioned
		}
		return Scope{TenantID: t.ID, Slug: t.Slug, ConnectionString: t.ConnectionString}, nil
	})
}

// Invalidate drops the cached scope of tenantID
func (r *Resolver) Invalidate(tenantID int64) {
	r.cache.Delete(cacheKey(tenantID))
}

func cacheKey(tenantID int64) string {
	return strconv.FormatInt(tenantID, 10)
}
