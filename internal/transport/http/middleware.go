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
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/tenancy/internal/observability/logger"
	"github.com/opentrusty/tenancy/internal/tenant"
)

// Request headers
const (
	// HeaderAdminKey authenticates the admin surface
	HeaderAdminKey = "X-Admin-Key"
	// HeaderUserID carries the user asserted by the upstream authenticator
	HeaderUserID = "X-User-ID"
	// HeaderTenantID optionally selects one of the user's tenants
	HeaderTenantID = "X-Tenant-ID"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				attrs := []any{
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				}
				if tc, ok := tenant.FromContext(r.Context()); ok {
					attrs = append(attrs, logger.TenantID(tc.TenantID))
				}
				slog.InfoContext(r.Context(), "http_request", attrs...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AdminKeyMiddleware rejects requests that do not present the admin key
func (h *Handler) AdminKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminKey == "" {
			respondError(w, http.StatusForbidden, "admin API is disabled")
			return
		}

		presented := r.Header.Get(HeaderAdminKey)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.adminKey)) != 1 {
			slog.WarnContext(r.Context(), "rejected admin request",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.RemoteAddr(r.RemoteAddr),
			)
			respondError(w, http.StatusUnauthorized, "invalid admin key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// TenantContextMiddleware resolves the tenant a workspace request runs
// against. The tenant comes from X-Tenant-ID when present, otherwise from
// the user's default membership, and must be active.
func (h *Handler) TenantContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		var requested int64
		if raw := r.Header.Get(HeaderTenantID); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				respondError(w, http.StatusBadRequest, "invalid X-Tenant-ID header")
				return
			}
			requested = id
		}

		t, err := h.tenantService.ResolveTenant(r.Context(), userID, requested)
		if err != nil {
			// Unknown memberships are not distinguished from foreign tenants.
			if requested != 0 && !isServerError(err) {
				slog.WarnContext(r.Context(), "tenant selection rejected",
					logger.UserID(userID),
					logger.TenantID(requested),
					logger.Error(err),
				)
				respondError(w, http.StatusForbidden, "tenant not accessible")
				return
			}
			respondServiceError(w, r, err)
			return
		}

		ctx := tenant.WithContext(r.Context(), tenant.Context{
			TenantID: t.ID,
			Slug:     t.Slug,
			UserID:   userID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
