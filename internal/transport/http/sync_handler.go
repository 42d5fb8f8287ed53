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
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pulsarconsole/pulsarconsole/internal/audit"
	"github.com/pulsarconsole/pulsarconsole/internal/rbacsync"
)

// SyncRequest selects the direction and mode of a sync run. An empty
// direction defaults from the environment's sync mode.
type SyncRequest struct {
	Direction string `json:"direction"`
	DryRun    bool   `json:"dry_run"`
}

// GetDiff returns the three-way permission diff for a namespace
// @Summary Namespace Permission Diff
// @Description Compare console and Pulsar permissions for a namespace
// @Tags Sync
// @Produce json
// @Security BearerAuth
// @Success 200 {object} rbacsync.Diff
// @Router /environments/{environmentID}/sync/tenants/{tenant}/namespaces/{namespace}/diff [get]
func (h *Handler) GetDiff(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")

	diff, err := h.engine.GetDiff(r.Context(), environmentID, chi.URLParam(r, "tenant"), chi.URLParam(r, "namespace"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, diff)
}

// PreviewSync returns the changes a sync run would make, without
// applying anything
func (h *Handler) PreviewSync(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	direction, err := rbacsync.ParseDirection(req.Direction)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	preview, err := h.engine.PreviewSync(r.Context(), environmentID,
		chi.URLParam(r, "tenant"), chi.URLParam(r, "namespace"), direction)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

// SyncNamespace applies the permission diff for one namespace
// @Summary Sync Namespace Permissions
// @Description Apply the permission diff between console and Pulsar for a namespace
// @Tags Sync
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} rbacsync.Result
// @Router /environments/{environmentID}/sync/tenants/{tenant}/namespaces/{namespace} [post]
func (h *Handler) SyncNamespace(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	direction, err := rbacsync.ParseDirection(req.Direction)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	tenant := chi.URLParam(r, "tenant")
	namespace := chi.URLParam(r, "namespace")

	result, err := h.engine.SyncNamespace(r.Context(), environmentID, tenant, namespace, direction, req.DryRun)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if !req.DryRun {
		h.auditLogger.Log(r.Context(), audit.Event{
			Type:          audit.TypeSyncCompleted,
			EnvironmentID: environmentID,
			ActorID:       GetIdentityID(r.Context()),
			Resource:      tenant + "/" + namespace,
			Metadata: map[string]any{
				"direction":       req.Direction,
				"changes_applied": result.ChangesApplied,
				"changes_failed":  result.ChangesFailed,
			},
		})
	}

	respondJSON(w, http.StatusOK, result)
}

// SyncTenant applies the permission diff for every namespace of a tenant
func (h *Handler) SyncTenant(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	direction, err := rbacsync.ParseDirection(req.Direction)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	tenant := chi.URLParam(r, "tenant")
	results := h.engine.SyncAllNamespaces(r.Context(), environmentID, tenant, direction, req.DryRun)

	if !req.DryRun {
		applied, failed := 0, 0
		for _, res := range results {
			applied += res.ChangesApplied
			failed += res.ChangesFailed
		}
		h.auditLogger.Log(r.Context(), audit.Event{
			Type:          audit.TypeSyncCompleted,
			EnvironmentID: environmentID,
			ActorID:       GetIdentityID(r.Context()),
			Resource:      tenant,
			Metadata: map[string]any{
				"direction":       req.Direction,
				"namespaces":      len(results),
				"changes_applied": applied,
				"changes_failed":  failed,
			},
		})
	}

	respondJSON(w, http.StatusOK, results)
}

// IssueTokenRequest mints a broker token for a role
type IssueTokenRequest struct {
	Role string `json:"role"`
}

// IssueBrokerToken mints a Pulsar broker JWT whose subject is the given
// role name
func (h *Handler) IssueBrokerToken(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	if !h.requireAdmin(w, r, environmentID) {
		return
	}

	if h.issuer == nil {
		respondError(w, http.StatusBadRequest, "broker token issuing is not configured")
		return
	}

	var req IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role == "" {
		respondError(w, http.StatusBadRequest, "role is required")
		return
	}

	token, err := h.issuer.IssueToken(req.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"role":  req.Role,
		"token": token,
	})
}
