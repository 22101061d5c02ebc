package tenant

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return ValidateSlug(fl.Field().String()) == nil
	}); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("dbname", func(fl validator.FieldLevel) bool {
		return ValidateDatabaseName(fl.Field().String()) == nil
	}); err != nil {
		panic(err)
	}
	return v
}

// CreateRequest is the administrative create-tenant request
type CreateRequest struct {
	Name                string         `json:"name" validate:"required,max=200"`
	Slug                string         `json:"slug" validate:"required,slug"`
	DocumentNumber      string         `json:"document_number,omitempty" validate:"omitempty,max=32"`
	PrimaryContactEmail string         `json:"primary_contact_email,omitempty" validate:"omitempty,email"`
	PrimaryContactName  string         `json:"primary_contact_name,omitempty" validate:"omitempty,max=200"`
	PrimaryContactPhone string         `json:"primary_contact_phone,omitempty" validate:"omitempty,max=32"`
	Region              string         `json:"region,omitempty" validate:"omitempty,max=64"`
	IsDemo              bool           `json:"is_demo"`
	Branding            *BrandingInput `json:"branding,omitempty"`
	DatabaseName        string         `json:"database_name,omitempty" validate:"omitempty,dbname"`
	ConnectionString    string         `json:"connection_string,omitempty"`
	ProvisionDatabase   bool           `json:"provision_database"`
}

// Normalize lowercases identifiers and trims free text
func (r *CreateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Slug = NormalizeSlug(r.Slug)
	r.DatabaseName = NormalizeDatabaseName(r.DatabaseName)
	r.PrimaryContactEmail = strings.TrimSpace(r.PrimaryContactEmail)
	r.ConnectionString = strings.TrimSpace(r.ConnectionString)
}

// Validate checks the request is considered clean
func (r CreateRequest) Validate() error {
	return check(r)
}

// UpdateRequest is the administrative update-tenant request. Slug and
// DatabaseName are optional renames; the database name is frozen once the
// physical database exists.
type UpdateRequest struct {
	Name                string         `json:"name" validate:"required,max=200"`
	DocumentNumber      string         `json:"document_number,omitempty" validate:"omitempty,max=32"`
	PrimaryContactName  string         `json:"primary_contact_name,omitempty" validate:"omitempty,max=200"`
	PrimaryContactEmail string         `json:"primary_contact_email,omitempty" validate:"omitempty,email"`
	PrimaryContactPhone string         `json:"primary_contact_phone,omitempty" validate:"omitempty,max=32"`
	Region              string         `json:"region,omitempty" validate:"omitempty,max=64"`
	IsDemo              bool           `json:"is_demo"`
	Status              Status         `json:"status,omitempty" validate:"omitempty,oneof=provisioning active suspended disabled archived"`
	Notes               string         `json:"notes,omitempty" validate:"omitempty,max=4000"`
	Branding            *BrandingInput `json:"branding,omitempty"`
	Slug                *string        `json:"slug,omitempty" validate:"omitempty,slug"`
	DatabaseName        *string        `json:"database_name,omitempty" validate:"omitempty,dbname"`
}

// Normalize lowercases identifiers and trims free text
func (r *UpdateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.PrimaryContactEmail = strings.TrimSpace(r.PrimaryContactEmail)
	if r.Slug != nil {
		s := NormalizeSlug(*r.Slug)
		r.Slug = &s
	}
	if r.DatabaseName != nil {
		n := NormalizeDatabaseName(*r.DatabaseName)
		r.DatabaseName = &n
	}
}

// Validate checks the request is considered clean
func (r UpdateRequest) Validate() error {
	return check(r)
}

// BrandingInput carries the optional branding of create and update requests
type BrandingInput struct {
	DisplayName    string `json:"display_name,omitempty" validate:"omitempty,max=200"`
	LogoURL        string `json:"logo_url,omitempty" validate:"omitempty,url"`
	FaviconURL     string `json:"favicon_url,omitempty" validate:"omitempty,url"`
	PrimaryColor   string `json:"primary_color,omitempty" validate:"omitempty,hexcolor"`
	SecondaryColor string `json:"secondary_color,omitempty" validate:"omitempty,hexcolor"`
}

func (b *BrandingInput) apply(existing *Branding) *Branding {
	out := &Branding{}
	if existing != nil {
		out.ID = existing.ID
	}
	out.DisplayName = b.DisplayName
	out.LogoURL = b.LogoURL
	out.FaviconURL = b.FaviconURL
	out.PrimaryColor = b.PrimaryColor
	out.SecondaryColor = b.SecondaryColor
	return out
}

// StatusRequest changes the lifecycle status of a tenant
type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=provisioning active suspended disabled archived"`
}

// Validate checks the request is considered clean
func (r StatusRequest) Validate() error {
	return check(r)
}

// MembershipRequest adds a user to a tenant
type MembershipRequest struct {
	UserID    string `json:"user_id" validate:"required,max=128"`
	IsDefault bool   `json:"is_default"`
}

// Validate checks the request is considered clean
func (r MembershipRequest) Validate() error {
	return check(r)
}

// check runs struct validation and reports the first failure as a ValidationError
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
		}
	}
	return &ValidationError{Message: err.Error()}
}
