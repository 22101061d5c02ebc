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
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/tenancy/internal/tenant"
)

// AddMember grants a user access to a tenant
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	var req tenant.MembershipRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.tenantService.AddMember(r.Context(), id, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, m)
}

// RevokeMember removes a user from a tenant
func (h *Handler) RevokeMember(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	if err := h.tenantService.RevokeMember(r.Context(), id, chi.URLParam(r, "userID")); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// SetDefaultMember makes the tenant the user's default
func (h *Handler) SetDefaultMember(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantIDParam(w, r)
	if !ok {
		return
	}

	if err := h.tenantService.SetDefaultTenant(r.Context(), chi.URLParam(r, "userID"), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "default"})
}
