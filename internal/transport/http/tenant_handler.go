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

package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/opentrusty/tenancy/internal/provisioning"
	"github.com/opentrusty/tenancy/internal/tenant"
)

// createTenantResponse carries the created tenant. A failed provisioning run
// does not undo the registration, so it is reported next to the tenant.
type createTenantResponse struct {
	Tenant            *tenant.Tenant          `json:"tenant"`
	Provisioning      *tenant.ProvisionReport `json:"provisioning,omitempty"`
	ProvisioningError *provisioningFailure    `json:"provisioning_error,omitempty"`
}

// CreateTenant handles tenant creation
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req tenant.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.tenantService.CreateTenant(r.Context(), req)
	if err != nil {
		var perr *provisioning.Error
		if result != nil && errors.As(err, &perr) {
			respondJSON(w, http.StatusCreated, createTenantResponse{
				Tenant:            result.Tenant,
				ProvisioningError: failureOf(perr),
			})
			return
		}
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, createTenantResponse{
		Tenant:       result.Tenant,
		Provisioning: result.Provisioning,
	})
}

// ListTenants handles listing tenants
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	tenants, err := h.tenantService.ListTenants(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if tenants == nil {
		tenants = []*tenant.Tenant{}
	}

	respondJSON(w, http.StatusOK, tenants)
}

// GetTenant returns a single tenant
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	t, err := h.tenantService.GetTenant(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// UpdateTenant applies an administrative update
func (h *Handler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	var req tenant.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.tenantService.UpdateTenant(r.Context(), id, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// GetConnection returns the connection view of a tenant
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	info, err := h.tenantService.ConnectionInfo(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

// ProvisionTenant (re)runs provisioning. With ?async=true the run continues
// after the response and the caller polls the tenant for the outcome.
func (h *Handler) ProvisionTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		t, _, err := h.tenantService.ProvisionTenantAsync(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		respondJSON(w, http.StatusAccepted, t)
		return
	}

	t, report, err := h.tenantService.ProvisionTenant(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, createTenantResponse{Tenant: t, Provisioning: report})
}

// ChangeStatus moves a tenant along its lifecycle
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	var req tenant.StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondServiceError(w, r, err)
		return
	}

	t, err := h.tenantService.ChangeStatus(r.Context(), id, req.Status)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, t)
}
