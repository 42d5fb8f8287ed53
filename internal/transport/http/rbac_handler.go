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
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
)

// PermissionResponse is a catalog entry
type PermissionResponse struct {
	ID            string `json:"id"`
	Action        string `json:"action"`
	ResourceLevel string `json:"resource_level"`
	Description   string `json:"description"`
}

// RoleResponse is an environment-scoped role
type RoleResponse struct {
	ID            string    `json:"id"`
	EnvironmentID string    `json:"environment_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	IsSystem      bool      `json:"is_system"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GrantResponse is a role grant joined with its permission
type GrantResponse struct {
	ID              string  `json:"id"`
	RoleID          string  `json:"role_id"`
	Action          string  `json:"action"`
	ResourceLevel   string  `json:"resource_level"`
	ResourcePattern *string `json:"resource_pattern"`
}

// AssignmentResponse binds an identity to a role
type AssignmentResponse struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	RoleID     string    `json:"role_id"`
	AssignedBy *string   `json:"assigned_by"`
	CreatedAt  time.Time `json:"created_at"`
}

func toRoleResponse(role *rbac.Role) RoleResponse {
	return RoleResponse{
		ID:            role.ID,
		EnvironmentID: role.EnvironmentID,
		Name:          role.Name,
		Description:   role.Description,
		IsSystem:      role.IsSystem,
		CreatedAt:     role.CreatedAt,
		UpdatedAt:     role.UpdatedAt,
	}
}

// ListPermissions returns the permission catalog
// @Summary List Permissions
// @Description List the immutable permission catalog
// @Tags RBAC
// @Produce json
// @Security BearerAuth
// @Success 200 {array} PermissionResponse
// @Router /permissions [get]
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.rbac.ListPermissions(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	out := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, PermissionResponse{
			ID:            p.ID,
			Action:        string(p.Action),
			ResourceLevel: string(p.ResourceLevel),
			Description:   p.Description,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// SeedEnvironment seeds the catalog and system roles for an environment
// @Summary Seed Environment
// @Description Create the permission catalog and system roles for an environment
// @Tags RBAC
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /environments/{environmentID}/rbac/seed [post]
func (h *Handler) SeedEnvironment(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	if !h.requireAdmin(w, r, environmentID) {
		return
	}

	if err := h.rbac.SeedEnvironment(r.Context(), environmentID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "environment seeded",
	})
}

// EnableRBAC turns permission enforcement on for an environment
func (h *Handler) EnableRBAC(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	if !h.requireAdmin(w, r, environmentID) {
		return
	}

	if err := h.rbac.EnableRBAC(r.Context(), environmentID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "rbac enabled"})
}

// DisableRBAC turns permission enforcement off for an environment
func (h *Handler) DisableRBAC(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	if !h.requireAdmin(w, r, environmentID) {
		return
	}

	if err := h.rbac.DisableRBAC(r.Context(), environmentID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "rbac disabled"})
}

// CheckPermissionRequest asks whether an identity may perform an action
type CheckPermissionRequest struct {
	IdentityID    string `json:"identity_id,omitempty"`
	Action        string `json:"action"`
	ResourceLevel string `json:"resource_level"`
	ResourcePath  string `json:"resource_path"`
}

// CheckPermission evaluates a permission for an identity
// @Summary Check Permission
// @Description Evaluate whether an identity may perform an action on a resource
// @Tags RBAC
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]bool
// @Router /environments/{environmentID}/rbac/check [post]
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")

	var req CheckPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Callers may always check themselves; checking another identity
	// requires admin.
	identityID := req.IdentityID
	if identityID == "" {
		identityID = GetIdentityID(r.Context())
	} else if identityID != GetIdentityID(r.Context()) && !h.requireAdmin(w, r, environmentID) {
		return
	}

	action, err := rbac.ParseAction(req.Action)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	level, err := rbac.ParseResourceLevel(req.ResourceLevel)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	allowed, err := h.rbac.CheckPermission(r.Context(), identityID, environmentID, action, level, req.ResourcePath)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

// ListRoles lists the roles of an environment
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")

	roles, err := h.rbac.ListRoles(r.Context(), environmentID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	out := make([]RoleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	respondJSON(w, http.StatusOK, out)
}

// CreateRoleRequest carries a new role definition
type CreateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateRole creates a custom role in an environment
// @Summary Create Role
// @Description Create a custom role in an environment
// @Tags RBAC
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 201 {object} RoleResponse
// @Failure 409 {object} map[string]string
// @Router /environments/{environmentID}/roles [post]
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	if !h.requireAdmin(w, r, environmentID) {
		return
	}

	var req CreateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, err := h.rbac.CreateRole(r.Context(), environmentID, req.Name, req.Description)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, toRoleResponse(role))
}

// GetRole returns a single role
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.rbac.GetRole(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toRoleResponse(role))
}

// UpdateRoleRequest renames a role or updates its description. Empty
// fields are left unchanged.
type UpdateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateRole renames a custom role or updates its description
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	if !h.requireAdmin(w, r, environmentID) {
		return
	}

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, err := h.rbac.RenameRole(r.Context(), chi.URLParam(r, "roleID"), req.Name, req.Description)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toRoleResponse(role))
}

// DeleteRole deletes a custom role
func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	if !h.requireAdmin(w, r, environmentID) {
		return
	}

	if err := h.rbac.DeleteRole(r.Context(), chi.URLParam(r, "roleID")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "role deleted"})
}

// ListRoleGrants lists a role's grants joined with their permissions
func (h *Handler) ListRoleGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.rbac.ListRoleGrants(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	perms, err := h.rbac.ListPermissions(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	byID := make(map[string]*rbac.Permission, len(perms))
	for _, p := range perms {
		byID[p.ID] = p
	}

	out := make([]GrantResponse, 0, len(grants))
	for _, g := range grants {
		resp := GrantResponse{
			ID:              g.ID,
			RoleID:          g.RoleID,
			ResourcePattern: g.ResourcePattern,
		}
		if p, ok := byID[g.PermissionID]; ok {
			resp.Action = string(p.Action)
			resp.ResourceLevel = string(p.ResourceLevel)
		}
		out = append(out, resp)
	}
	respondJSON(w, http.StatusOK, out)
}

// GrantRequest attaches or detaches a permission on a role
type GrantRequest struct {
	Action          string  `json:"action"`
	ResourceLevel   string  `json:"resource_level"`
	ResourcePattern *string `json:"resource_pattern"`
}

// GrantPermission adds a permission grant to a role
func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	if !h.requireAdmin(w, r, environmentID) {
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := rbac.ParseAction(req.Action)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	level, err := rbac.ParseResourceLevel(req.ResourceLevel)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	grant, err := h.rbac.GrantPermission(r.Context(), chi.URLParam(r, "roleID"), action, level, req.ResourcePattern)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, GrantResponse{
		ID:              grant.ID,
		RoleID:          grant.RoleID,
		Action:          req.Action,
		ResourceLevel:   req.ResourceLevel,
		ResourcePattern: grant.ResourcePattern,
	})
}

// RevokePermission removes a permission grant from a role
func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	if !h.requireAdmin(w, r, environmentID) {
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := rbac.ParseAction(req.Action)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	level, err := rbac.ParseResourceLevel(req.ResourceLevel)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if err := h.rbac.RevokePermission(r.Context(), chi.URLParam(r, "roleID"), action, level, req.ResourcePattern); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "grant revoked"})
}

// ListAssignments lists an identity's role assignments in an environment
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	identityID := chi.URLParam(r, "identityID")

	assignments, err := h.rbac.ListAssignments(r.Context(), identityID, environmentID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	out := make([]AssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, AssignmentResponse{
			ID:         a.ID,
			IdentityID: a.IdentityID,
			RoleID:     a.RoleID,
			AssignedBy: a.AssignedBy,
			CreatedAt:  a.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// AssignRoleRequest binds a role to an identity
type AssignRoleRequest struct {
	RoleID string `json:"role_id"`
}

// AssignRole assigns a role to an identity
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	if !h.requireAdmin(w, r, environmentID) {
		return
	}

	var req AssignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := GetIdentityID(r.Context())
	assignment, err := h.rbac.AssignRole(r.Context(), chi.URLParam(r, "identityID"), req.RoleID, &actor)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, AssignmentResponse{
		ID:         assignment.ID,
		IdentityID: assignment.IdentityID,
		RoleID:     assignment.RoleID,
		AssignedBy: assignment.AssignedBy,
		CreatedAt:  assignment.CreatedAt,
	})
}

// SetIdentityRolesRequest replaces an identity's roles in an environment
type SetIdentityRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

// SetIdentityRoles replaces an identity's role set within an environment
func (h *Handler) SetIdentityRoles(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	if !h.requireAdmin(w, r, environmentID) {
		return
	}

	var req SetIdentityRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := GetIdentityID(r.Context())
	err := h.rbac.SetIdentityRoles(r.Context(), chi.URLParam(r, "identityID"), environmentID, req.RoleIDs, &actor)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "roles updated"})
}

// RevokeRole removes a role assignment from an identity
func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	if !h.requireAdmin(w, r, environmentID) {
		return
	}

	err := h.rbac.RevokeRole(r.Context(), chi.URLParam(r, "identityID"), chi.URLParam(r, "roleID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "role revoked"})
}

// EffectivePermissions returns the flattened permissions an identity
// holds in an environment, with their sources
func (h *Handler) EffectivePermissions(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	identityID := chi.URLParam(r, "identityID")

	// Identities may inspect themselves; inspecting others requires admin.
	if identityID != GetIdentityID(r.Context()) && !h.requireAdmin(w, r, environmentID) {
		return
	}

	perms, err := h.rbac.EffectivePermissions(r.Context(), identityID, environmentID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, perms)
}
