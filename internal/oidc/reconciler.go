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

// Package oidc reconciles identity-provider group claims into console
// role assignments at login time.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
)

// Provider is the per-provider reconciliation policy, loaded from the
// environment's OIDC provider configuration.
type Provider struct {
	EnvironmentID string

	// GroupRoleMappings maps an IdP group name to a console role name.
	GroupRoleMappings map[string]string

	// AdminGroups lists groups whose members become global admins.
	AdminGroups []string

	// DefaultRoleName, when set, is added to every reconciled identity.
	DefaultRoleName string

	// SyncOnLogin makes the reconciliation authoritative: assignments
	// not backed by a current group are removed, and the admin flag is
	// cleared when no admin group matches. When false the reconciler
	// only ever adds.
	SyncOnLogin bool
}

// Reconciler applies group claims to one identity's assignments.
type Reconciler struct {
	rbac       *rbac.Service
	identities rbac.IdentityRepository
	logger     *slog.Logger
}

// NewReconciler creates a group reconciler.
func NewReconciler(svc *rbac.Service, identities rbac.IdentityRepository, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{rbac: svc, identities: identities, logger: logger}
}

// Apply reconciles an identity's global-admin flag and environment-scoped
// role assignments against the groups asserted by the provider.
//
// The admin flag is sticky: it is set whenever an admin group matches,
// but cleared only when SyncOnLogin is enabled. A manually elevated
// identity must not be demoted by an unrelated provider change.
//
// Unknown role names in the mappings are dropped with a warning rather
// than failing the login: provider configuration drifts independently
// of the console's role store.
func (r *Reconciler) Apply(ctx context.Context, identityID string, groups []string, provider Provider) error {
	inGroups := make(map[string]bool, len(groups))
	for _, g := range groups {
		inGroups[g] = true
	}

	if err := r.applyAdminFlag(ctx, identityID, inGroups, provider); err != nil {
		return err
	}

	targetNames := make(map[string]bool)
	for group, roleName := range provider.GroupRoleMappings {
		if inGroups[group] {
			targetNames[roleName] = true
		}
	}
	if provider.DefaultRoleName != "" {
		targetNames[provider.DefaultRoleName] = true
	}

	var targetIDs []string
	for name := range targetNames {
		role, err := r.rbac.GetRoleByName(ctx, provider.EnvironmentID, name)
		if errors.Is(err, rbac.ErrNotFound) {
			r.logger.WarnContext(ctx, "mapped role does not exist, skipping",
				slog.String("role", name),
				slog.String("environment_id", provider.EnvironmentID))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to resolve role %q: %w", name, err)
		}
		targetIDs = append(targetIDs, role.ID)
	}

	if provider.SyncOnLogin {
		// Authoritative: replace the identity's roles in this
		// environment, including down to none.
		if err := r.rbac.SetIdentityRoles(ctx, identityID, provider.EnvironmentID, targetIDs, nil); err != nil {
			return fmt.Errorf("failed to sync roles: %w", err)
		}
		return nil
	}

	// Add-only mode.
	for _, roleID := range targetIDs {
		_, err := r.rbac.AssignRole(ctx, identityID, roleID, nil)
		if err != nil && !errors.Is(err, rbac.ErrConflict) {
			return fmt.Errorf("failed to assign role: %w", err)
		}
	}
	return nil
}

func (r *Reconciler) applyAdminFlag(ctx context.Context, identityID string, inGroups map[string]bool, provider Provider) error {
	isAdmin := false
	for _, g := range provider.AdminGroups {
		if inGroups[g] {
			isAdmin = true
			break
		}
	}

	identity, err := r.identities.GetByID(ctx, identityID)
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}

	switch {
	case isAdmin && !identity.IsGlobalAdmin:
		r.logger.InfoContext(ctx, "granting global admin from group membership",
			slog.String("identity_id", identityID))
		return r.identities.SetGlobalAdmin(ctx, identityID, true)
	case !isAdmin && identity.IsGlobalAdmin && provider.SyncOnLogin:
		r.logger.InfoContext(ctx, "revoking global admin, no admin group matches",
			slog.String("identity_id", identityID))
		return r.identities.SetGlobalAdmin(ctx, identityID, false)
	default:
		return nil
	}
}
