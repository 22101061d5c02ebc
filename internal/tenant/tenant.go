package tenant

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a tenant in the control plane
type Status string

// Status constants
const (
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusSuspended    Status = "suspended"
	StatusDisabled     Status = "disabled"
	StatusArchived     Status = "archived"
)

// transitions lists the statuses reachable from each status. Everything moves
// forward except the active/suspended pair.
var transitions = map[Status][]Status{
	StatusProvisioning: {StatusActive, StatusDisabled, StatusArchived},
	StatusActive:       {StatusSuspended, StatusDisabled, StatusArchived},
	StatusSuspended:    {StatusActive, StatusDisabled, StatusArchived},
	StatusDisabled:     {StatusArchived},
	StatusArchived:     nil,
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether a tenant in status s may move to next.
// Staying in the same status is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return s.IsValid()
	}
	return slices.Contains(transitions[s], next)
}

// Tenant represents an isolated customer organization. Only metadata lives in
// the control plane; business data lives in the tenant's own database.
type Tenant struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	Slug                string     `json:"slug"`
	Status              Status     `json:"status"`
	DatabaseName        string     `json:"database_name,omitempty"`
	ConnectionString    string     `json:"-"`
	DocumentNumber      string     `json:"document_number,omitempty"`
	PrimaryContactName  string     `json:"primary_contact_name,omitempty"`
	PrimaryContactEmail string     `json:"primary_contact_email,omitempty"`
	PrimaryContactPhone string     `json:"primary_contact_phone,omitempty"`
	IsDemo              bool       `json:"is_demo"`
	Region              string     `json:"region,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	BrandingID          *int64     `json:"branding_id,omitempty"`
	Branding            *Branding  `json:"branding,omitempty"`
	ProvisioningError   string     `json:"provisioning_error,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	ProvisionedAt       *time.Time `json:"provisioned_at,omitempty"`
	ActivatedAt         *time.Time `json:"activated_at,omitempty"`
	SuspendedAt         *time.Time `json:"suspended_at,omitempty"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`

	// ExternalConnectionString points at a database managed outside this
	// system. It becomes ConnectionString once the create_database step runs.
	ExternalConnectionString string `json:"-"`
}

// Branding is the optional visual customization owned by a tenant
type Branding struct {
	ID             int64  `json:"id"`
	DisplayName    string `json:"display_name,omitempty"`
	LogoURL        string `json:"logo_url,omitempty"`
	FaviconURL     string `json:"favicon_url,omitempty"`
	PrimaryColor   string `json:"primary_color,omitempty"`
	SecondaryColor string `json:"secondary_color,omitempty"`
}

// IsProvisioned reports whether every provisioning step has completed
func (t *Tenant) IsProvisioned() bool {
	return t.ProvisionedAt != nil
}

// HasDatabase reports whether the physical database has been created
func (t *Tenant) HasDatabase() bool {
	return t.ConnectionString != ""
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (t *Tenant) Clone() *Tenant {
	c := *t
	if t.Branding != nil {
		b := *t.Branding
		c.Branding = &b
	}
	c.BrandingID = clonePtr(t.BrandingID)
	c.ProvisionedAt = clonePtr(t.ProvisionedAt)
	c.ActivatedAt = clonePtr(t.ActivatedAt)
	c.SuspendedAt = clonePtr(t.SuspendedAt)
	c.DeletedAt = clonePtr(t.DeletedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ConnectionInfo is the connection view of a tenant exposed to administrators
type ConnectionInfo struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Slug             string     `json:"slug"`
	Status           Status     `json:"status"`
	DatabaseName     string     `json:"database_name"`
	ConnectionString string     `json:"connection_string"`
	CreatedAt        time.Time  `json:"created_at"`
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
}

// ConnectionInfoOf projects t onto its connection view
func ConnectionInfoOf(t *Tenant) *ConnectionInfo {
	return &ConnectionInfo{
		ID:               t.ID,
		Name:             t.Name,
		Slug:             t.Slug,
		Status:           t.Status,
		DatabaseName:     t.DatabaseName,
		ConnectionString: t.ConnectionString,
		CreatedAt:        t.CreatedAt,
		ActivatedAt:      t.ActivatedAt,
	}
}
