package tenant

import "context"

type contextKey struct{}

// Context is the request-scoped tenant selection. It is resolved once per
// inbound request and passed down explicitly through context.Context.
type Context struct {
	TenantID int64
	Slug     string
	UserID   string
}

// WithContext returns a copy of ctx carrying tc
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext returns the tenant selection carried by ctx
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(contextKey{}).(Context)
	if !ok || tc.TenantID == 0 {
		return Context{}, false
	}
	return tc, true
}

// IDFromContext returns the current tenant id or 0
func IDFromContext(ctx context.Context) int64 {
	tc, _ := FromContext(ctx)
	return tc.TenantID
}
