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

package tenant

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrConflict           = errors.New("conflict")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrTenantNotActive    = errors.New("tenant is not active")
	ErrNotProvisioned     = errors.New("tenant has not been provisioned")
)

// Field names reported by ConflictError
const (
	FieldSlug         = "Slug"
	FieldDatabaseName = "DatabaseName"
)

// ConflictError reports that a unique attribute is already taken by another tenant.
// It matches ErrConflict with errors.Is.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s '%s' já está em uso por outro tenant.", e.Field, e.Value)
}

// Is reports whether target is ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ValidationError reports malformed input such as a bad slug or template.
// It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
