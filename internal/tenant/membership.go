package tenant

import "time"

// Membership links a user to a tenant. A user may belong to many tenants but
// holds at most one live default membership.
type Membership struct {
	ID        int64      `json:"id"`
	UserID    string     `json:"user_id"`
	TenantID  int64      `json:"tenant_id"`
	IsDefault bool       `json:"is_default"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// IsActive reports whether the membership has not been revoked
func (m *Membership) IsActive() bool {
	return m.RevokedAt == nil
}
