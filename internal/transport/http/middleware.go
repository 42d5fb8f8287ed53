// Copyright 2026 The Pulsar Console Authors
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
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pulsarconsole/pulsarconsole/internal/audit"
	"github.com/pulsarconsole/pulsarconsole/internal/observability/logger"
	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthMiddleware validates the console bearer token and adds identity_id
// to context. Tokens are HS256 JWTs with the identity ID as subject,
// issued by the login subsystem.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(raw, prefix) {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(raw, prefix), claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return h.jwtSecret, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), identityIDKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission guards a route subtree with a permission check
// against the environment named in the URL.
func (h *Handler) RequirePermission(action rbac.Action, level rbac.ResourceLevel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !h.authorize(w, r, chi.URLParam(r, "environmentID"), action, level) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAdmin checks the caller holds cluster-level admin in the
// environment. Global admins and holders of a superuser role pass the
// check inside the evaluator.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request, environmentID string) bool {
	return h.authorize(w, r, environmentID, rbac.ActionAdmin, rbac.LevelCluster)
}

// authorize evaluates a permission for the caller, writes the error
// response itself, and reports whether the request may proceed.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, environmentID string, action rbac.Action, level rbac.ResourceLevel) bool {
	identityID := GetIdentityID(r.Context())

	allowed, err := h.rbac.CheckPermission(r.Context(), identityID, environmentID, action, level, "")
	if err != nil {
		respondServiceError(w, r, err)
		return false
	}
	if !allowed {
		h.auditLogger.Log(r.Context(), audit.Event{
			Type:          audit.TypePermissionDenied,
			EnvironmentID: environmentID,
			ActorID:       identityID,
			Resource:      r.Method + " " + r.URL.Path,
			Metadata:      map[string]any{"ip": getIPAddress(r)},
		})
		respondError(w, http.StatusForbidden, "permission denied")
		return false
	}
	return true
}
