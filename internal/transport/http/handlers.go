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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/tenancy/internal/observability/logger"
	"github.com/opentrusty/tenancy/internal/provisioning"
	"github.com/opentrusty/tenancy/internal/tenant"
	"github.com/opentrusty/tenancy/internal/tenantdb"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	tenantService *tenant.Service
	directory     *tenantdb.Directory
	adminKey      string
	timeout       time.Duration
}

// Config holds HTTP surface configuration
type Config struct {
	// AdminKey guards the admin surface. An empty key disables it.
	AdminKey       string
	RequestTimeout time.Duration
}

// NewHandler creates a new HTTP handler
func NewHandler(tenantService *tenant.Service, directory *tenantdb.Directory, cfg Config) *Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	return &Handler{
		tenantService: tenantService,
		directory:     directory,
		adminKey:      cfg.AdminKey,
		timeout:       cfg.RequestTimeout,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if rateLimiter != nil {
		r.Use(RateLimitMiddleware(rateLimiter))
	}
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.timeout))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/admin/tenants", func(r chi.Router) {
			r.Use(h.AdminKeyMiddleware)

			r.Post("/", h.CreateTenant)
			r.Get("/", h.ListTenants)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetTenant)
				r.Put("/", h.UpdateTenant)
				r.Get("/connection", h.GetConnection)
				r.Post("/provision", h.ProvisionTenant)
				r.Post("/status", h.ChangeStatus)

				r.Post("/members", h.AddMember)
				r.Delete("/members/{userID}", h.RevokeMember)
				r.Post("/members/{userID}/default", h.SetDefaultMember)
			})
		})

		r.Route("/workspace", func(r chi.Router) {
			r.Use(h.TenantContextMiddleware)

			r.Get("/roles", h.ListRoles)
			r.Post("/roles", h.CreateRole)
			r.Get("/users", h.ListUsers)
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "tenancy",
	})
}

// provisioningFailure is the error body of a failed provisioning step
type provisioningFailure struct {
	Error     string `json:"error"`
	Step      string `json:"step"`
	Retryable bool   `json:"retryable"`
}

func failureOf(perr *provisioning.Error) *provisioningFailure {
	return &provisioningFailure{
		Error:     perr.Error(),
		Step:      perr.Step,
		Retryable: perr.Retryable(),
	}
}

// respondServiceError maps domain errors onto HTTP status codes
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		perr     *provisioning.Error
		conflict *tenant.ConflictError
		verr     *tenant.ValidationError
	)

	switch {
	case errors.As(err, &perr):
		slog.ErrorContext(r.Context(), "provisioning failed",
			logger.TenantID(perr.TenantID),
			logger.Step(perr.Step),
			logger.Error(perr.Err),
		)
		respondJSON(w, http.StatusInternalServerError, failureOf(perr))
	case errors.As(err, &conflict):
		respondError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, tenant.ErrTenantNotFound), errors.Is(err, tenant.ErrMembershipNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tenant.ErrInvalidTransition),
		errors.Is(err, tenant.ErrNotProvisioned),
		errors.Is(err, provisioning.ErrAlreadyRunning),
		errors.Is(err, tenantdb.ErrRoleExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tenant.ErrTenantNotActive):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, tenantdb.ErrNoTenant):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed",
			logger.RequestID(middleware.GetReqID(r.Context())),
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func tenantIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid tenant id")
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// isServerError reports whether err is not one of the domain errors
func isServerError(err error) bool {
	return !errors.Is(err, tenant.ErrMembershipNotFound) &&
		!errors.Is(err, tenant.ErrTenantNotFound) &&
		!errors.Is(err, tenant.ErrTenantNotActive) &&
		!errors.Is(err, tenant.ErrValidation)
}
