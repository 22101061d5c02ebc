package http

import (
	"net/http"

	"github.com/opentrusty/tenancy/internal/tenantdb"
)

// CreateRoleRequest represents role creation data
type CreateRoleRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// ListRoles lists the roles of the current tenant
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.directory.ListRoles(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if roles == nil {
		roles = []tenantdb.ApplicationRole{}
	}
	respondJSON(w, http.StatusOK, roles)
}

// CreateRole adds a role to the current tenant
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	role, err := h.directory.CreateRole(r.Context(), req.Name, req.Permissions)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, role)
}

// ListUsers lists the users of the current tenant
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.ListUsers(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []tenantdb.ApplicationUser{}
	}
	respondJSON(w, http.StatusOK, users)
}
