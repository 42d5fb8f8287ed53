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

package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pulsarconsole/pulsarconsole/internal/id"
)

// Service provides role-based access control: the permission catalog,
// the role/assignment store and the policy evaluator.
type Service struct {
	permRepo     PermissionRepository
	roleRepo     RoleRepository
	grantRepo    GrantRepository
	assignRepo   AssignmentRepository
	identityRepo IdentityRepository
	envRepo      EnvironmentRepository
	catalog      *CatalogCache
	tx           TxRunner
	hooks        []Hook
}

// NewService creates the RBAC service.
func NewService(
	permRepo PermissionRepository,
	roleRepo RoleRepository,
	grantRepo GrantRepository,
	assignRepo AssignmentRepository,
	identityRepo IdentityRepository,
	envRepo EnvironmentRepository,
	catalog *CatalogCache,
	tx TxRunner,
) *Service {
	return &Service{
		permRepo:     permRepo,
		roleRepo:     roleRepo,
		grantRepo:    grantRepo,
		assignRepo:   assignRepo,
		identityRepo: identityRepo,
		envRepo:      envRepo,
		catalog:      catalog,
		tx:           tx,
	}
}

// AddHook registers a post-commit hook. Not safe for concurrent use;
// register hooks during wiring, before serving.
func (s *Service) AddHook(h Hook) {
	s.hooks = append(s.hooks, h)
}

// -----------------------------------------------------------------------------
// Catalog & Seeding
// -----------------------------------------------------------------------------

// EnsureCatalog idempotently inserts every catalog entry and returns a
// lookup map keyed by (action, level). A storage failure here is fatal
// to the calling setup step: the caller must not proceed with an
// incomplete catalog.
func (s *Service) EnsureCatalog(ctx context.Context) (map[PermissionKey]*Permission, error) {
	byKey := make(map[PermissionKey]*Permission, len(PermissionDefinitions))
	seeded := false

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, def := range PermissionDefinitions {
			existing, err := s.permRepo.GetByKey(ctx, def.Action, def.Level)
			if err == nil {
				byKey[existing.Key()] = existing
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("failed to look up permission %s:%s: %w", def.Action, def.Level, err)
			}

			p := &Permission{
				ID:            id.NewUUIDv7(),
				Action:        def.Action,
				ResourceLevel: def.Level,
				Description:   def.Description,
				CreatedAt:     time.Now(),
			}
			if err := s.permRepo.Create(ctx, p); err != nil {
				return fmt.Errorf("failed to seed permission %s:%s: %w", def.Action, def.Level, err)
			}
			byKey[p.Key()] = p
			seeded = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if seeded {
		s.catalog.Invalidate()
		s.notify(ctx, ChangeEvent{Type: ChangeCatalogSeeded})
	}
	return byKey, nil
}

// SeedEnvironment idempotently creates the system roles and their
// grants for an environment. Existing roles are left untouched.
func (s *Service) SeedEnvironment(ctx context.Context, environmentID string) error {
	perms, err := s.EnsureCatalog(ctx)
	if err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		for name, def := range SystemRoles {
			if _, err := s.roleRepo.GetByName(ctx, environmentID, name); err == nil {
				continue
			} else if !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("failed to look up role %q: %w", name, err)
			}

			now := time.Now()
			role := &Role{
				ID:            id.NewUUIDv7(),
				EnvironmentID: environmentID,
				Name:          name,
				Description:   def.Description,
				IsSystem:      true,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.roleRepo.Create(ctx, role); err != nil {
				return fmt.Errorf("failed to seed role %q: %w", name, err)
			}

			for _, g := range def.Grants {
				perm, ok := perms[PermissionKey{Action: g.Action, Level: g.Level}]
				if !ok {
					return fmt.Errorf("%w: system role %q references unknown permission %s:%s",
						ErrInvalidArgument, name, g.Action, g.Level)
				}
				pattern := g.Pattern
				grant := &RoleGrant{
					ID:              id.NewUUIDv7(),
					RoleID:          role.ID,
					PermissionID:    perm.ID,
					ResourcePattern: &pattern,
					CreatedAt:       now,
				}
				if err := s.grantRepo.Add(ctx, grant); err != nil {
					return fmt.Errorf("failed to seed grant %s:%s for role %q: %w", g.Action, g.Level, name, err)
				}
			}
		}
		return nil
	})
}

// EnableRBAC turns on enforcement for an environment and seeds its
// system roles.
func (s *Service) EnableRBAC(ctx context.Context, environmentID string) error {
	if err := s.SeedEnvironment(ctx, environmentID); err != nil {
		return err
	}
	return s.envRepo.SetRBACEnabled(ctx, environmentID, true)
}

// DisableRBAC turns off enforcement. Roles and assignments are kept.
func (s *Service) DisableRBAC(ctx context.Context, environmentID string) error {
	return s.envRepo.SetRBACEnabled(ctx, environmentID, false)
}

// ListPermissions returns the full permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]*Permission, error) {
	return s.permRepo.List(ctx)
}

// -----------------------------------------------------------------------------
// Role Management
// -----------------------------------------------------------------------------

// CreateRole creates a non-system role. Returns ErrConflict if the name
// is taken within the environment.
func (s *Service) CreateRole(ctx context.Context, environmentID, name, description string) (*Role, error) {
	var role *Role
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.roleRepo.GetByName(ctx, environmentID, name); err == nil {
			return fmt.Errorf("role %q %w in this environment", name, ErrConflict)
		} else if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to look up role %q: %w", name, err)
		}

		now := time.Now()
		role = &Role{
			ID:            id.NewUUIDv7(),
			EnvironmentID: environmentID,
			Name:          name,
			Description:   description,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.roleRepo.Create(ctx, role); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, ChangeEvent{
		Type:          ChangeRoleCreated,
		EnvironmentID: environmentID,
		RoleID:        role.ID,
		RoleName:      role.Name,
	})
	return role, nil
}

// RenameRole updates a role's name and/or description. Renaming a
// system role returns ErrForbidden; description edits are allowed.
func (s *Service) RenameRole(ctx context.Context, roleID, name, description string) (*Role, error) {
	var role *Role
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		role, err = s.roleRepo.GetByID(ctx, roleID)
		if err != nil {
			return err
		}

		if name != "" && name != role.Name {
			if role.IsSystem {
				return fmt.Errorf("%w: cannot rename system role %q", ErrForbidden, role.Name)
			}
			if _, err := s.roleRepo.GetByName(ctx, role.EnvironmentID, name); err == nil {
				return fmt.Errorf("role %q %w in this environment", name, ErrConflict)
			} else if !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("failed to look up role %q: %w", name, err)
			}
			role.Name = name
		}
		if description != "" {
			role.Description = description
		}
		role.UpdatedAt = time.Now()
		if err := s.roleRepo.Update(ctx, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, ChangeEvent{
		Type:          ChangeRoleRenamed,
		EnvironmentID: role.EnvironmentID,
		RoleID:        role.ID,
		RoleName:      role.Name,
	})
	return role, nil
}

// DeleteRole deletes a non-system role along with its grants and
// assignments (cascaded by storage). System roles return ErrForbidden.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	var role *Role
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		role, err = s.roleRepo.GetByID(ctx, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return fmt.Errorf("%w: cannot delete system role %q", ErrForbidden, role.Name)
		}
		return s.roleRepo.Delete(ctx, roleID)
	})
	if err != nil {
		return err
	}

	s.notify(ctx, ChangeEvent{
		Type:          ChangeRoleDeleted,
		EnvironmentID: role.EnvironmentID,
		RoleID:        role.ID,
		RoleName:      role.Name,
	})
	return nil
}

// GetRole retrieves a role by ID.
func (s *Service) GetRole(ctx context.Context, roleID string) (*Role, error) {
	return s.roleRepo.GetByID(ctx, roleID)
}

// GetRoleByName retrieves a role by name within an environment.
func (s *Service) GetRoleByName(ctx context.Context, environmentID, name string) (*Role, error) {
	return s.roleRepo.GetByName(ctx, environmentID, name)
}

// ListRoles lists every role in an environment.
func (s *Service) ListRoles(ctx context.Context, environmentID string) ([]*Role, error) {
	return s.roleRepo.ListByEnvironment(ctx, environmentID)
}

// -----------------------------------------------------------------------------
// Grant Management
// -----------------------------------------------------------------------------

// GrantPermission attaches (action, level, pattern) to a role. The
// permission is resolved through the catalog cache; a duplicate grant
// returns ErrConflict.
func (s *Service) GrantPermission(ctx context.Context, roleID string, action Action, level ResourceLevel, pattern *string) (*RoleGrant, error) {
	perm, err := s.catalog.Get(ctx, action, level)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permission %s:%s: %w", action, level, err)
	}

	var role *Role
	var grant *RoleGrant
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		role, err = s.roleRepo.GetByID(ctx, roleID)
		if err != nil {
			return err
		}
		grant = &RoleGrant{
			ID:              id.NewUUIDv7(),
			RoleID:          roleID,
			PermissionID:    perm.ID,
			ResourcePattern: pattern,
			CreatedAt:       time.Now(),
		}
		return s.grantRepo.Add(ctx, grant)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, ChangeEvent{
		Type:          ChangeGrantAdded,
		EnvironmentID: role.EnvironmentID,
		RoleID:        role.ID,
		RoleName:      role.Name,
		Action:        action,
		ResourceLevel: level,
		Pattern:       pattern,
	})
	return grant, nil
}

// RevokePermission removes a grant identified by (action, level,
// pattern) from a role. Returns ErrNotFound if no such grant exists.
func (s *Service) RevokePermission(ctx context.Context, roleID string, action Action, level ResourceLevel, pattern *string) error {
	perm, err := s.catalog.Get(ctx, action, level)
	if err != nil {
		return fmt.Errorf("failed to resolve permission %s:%s: %w", action, level, err)
	}

	var role *Role
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		role, err = s.roleRepo.GetByID(ctx, roleID)
		if err != nil {
			return err
		}
		return s.grantRepo.Remove(ctx, roleID, perm.ID, pattern)
	})
	if err != nil {
		return err
	}

	s.notify(ctx, ChangeEvent{
		Type:          ChangeGrantRemoved,
		EnvironmentID: role.EnvironmentID,
		RoleID:        role.ID,
		RoleName:      role.Name,
		Action:        action,
		ResourceLevel: level,
		Pattern:       pattern,
	})
	return nil
}

// ListRoleGrants returns all grants attached to a role.
func (s *Service) ListRoleGrants(ctx context.Context, roleID string) ([]*RoleGrant, error) {
	return s.grantRepo.ListForRole(ctx, roleID)
}

// -----------------------------------------------------------------------------
// Assignment Management
// -----------------------------------------------------------------------------

// AssignRole binds an identity to a role. A duplicate assignment
// returns ErrConflict; reconcilers treat that as a no-op.
func (s *Service) AssignRole(ctx context.Context, identityID, roleID string, assignedBy *string) (*Assignment, error) {
	var role *Role
	var a *Assignment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		role, err = s.roleRepo.GetByID(ctx, roleID)
		if err != nil {
			return err
		}
		a = &Assignment{
			ID:         id.NewUUIDv7(),
			IdentityID: identityID,
			RoleID:     roleID,
			AssignedBy: assignedBy,
			CreatedAt:  time.Now(),
		}
		return s.assignRepo.Assign(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	actor := ""
	if assignedBy != nil {
		actor = *assignedBy
	}
	s.notify(ctx, ChangeEvent{
		Type:          ChangeAssignmentAdded,
		EnvironmentID: role.EnvironmentID,
		RoleID:        role.ID,
		RoleName:      role.Name,
		IdentityID:    identityID,
		ActorID:       actor,
	})
	return a, nil
}

// RevokeRole removes an identity-role binding. Returns ErrNotFound if
// the assignment does not exist.
func (s *Service) RevokeRole(ctx context.Context, identityID, roleID string) error {
	var role *Role
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		role, err = s.roleRepo.GetByID(ctx, roleID)
		if err != nil {
			return err
		}
		return s.assignRepo.Remove(ctx, identityID, roleID)
	})
	if err != nil {
		return err
	}

	s.notify(ctx, ChangeEvent{
		Type:          ChangeAssignmentRemoved,
		EnvironmentID: role.EnvironmentID,
		RoleID:        role.ID,
		RoleName:      role.Name,
		IdentityID:    identityID,
	})
	return nil
}

// SetIdentityRoles replaces an identity's roles within one environment.
// Roles from other environments are untouched.
func (s *Service) SetIdentityRoles(ctx context.Context, identityID, environmentID string, roleIDs []string, assignedBy *string) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.assignRepo.ListForIdentity(ctx, identityID, environmentID)
		if err != nil {
			return fmt.Errorf("failed to list assignments: %w", err)
		}

		wanted := make(map[string]bool, len(roleIDs))
		for _, rid := range roleIDs {
			role, err := s.roleRepo.GetByID(ctx, rid)
			if err != nil {
				return err
			}
			if role.EnvironmentID != environmentID {
				return fmt.Errorf("%w: role %q belongs to another environment", ErrInvalidArgument, role.Name)
			}
			wanted[rid] = true
		}

		for _, cur := range current {
			if !wanted[cur.RoleID] {
				if err := s.assignRepo.Remove(ctx, identityID, cur.RoleID); err != nil {
					return err
				}
			} else {
				delete(wanted, cur.RoleID)
			}
		}
		for rid := range wanted {
			a := &Assignment{
				ID:         id.NewUUIDv7(),
				IdentityID: identityID,
				RoleID:     rid,
				AssignedBy: assignedBy,
				CreatedAt:  time.Now(),
			}
			if err := s.assignRepo.Assign(ctx, a); err != nil && !errors.Is(err, ErrConflict) {
				return err
			}
		}
		return nil
	})
}

// ListAssignments returns the identity's role assignments in an
// environment.
func (s *Service) ListAssignments(ctx context.Context, identityID, environmentID string) ([]*Assignment, error) {
	return s.assignRepo.ListForIdentity(ctx, identityID, environmentID)
}

// -----------------------------------------------------------------------------
// Policy Evaluation
// -----------------------------------------------------------------------------

// HasSuperuserAccess reports whether the identity is a global admin or
// holds the superuser role anywhere. Superuser is environment-scoped in
// storage but globally authoritative: one operator identity can
// administer multiple clusters.
func (s *Service) HasSuperuserAccess(ctx context.Context, identityID string) (bool, error) {
	identity, err := s.identityRepo.GetByID(ctx, identityID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if identity != nil && identity.IsGlobalAdmin {
		return true, nil
	}
	return s.assignRepo.HasRoleName(ctx, identityID, RoleSuperuser)
}

// CheckPermission decides whether an identity may perform an action at
// a resource level on a concrete resource path.
//
// The check is uncached and reads committed state directly: grants
// change at administrator speed but must be reflected on the very next
// call. Absence of a matching role or grant is an ordinary deny, never
// an error.
func (s *Service) CheckPermission(ctx context.Context, identityID, environmentID string, action Action, level ResourceLevel, resourcePath string) (bool, error) {
	super, err := s.HasSuperuserAccess(ctx, identityID)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}

	env, err := s.envRepo.GetByID(ctx, environmentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if env == nil || !env.RBACEnabled {
		return true, nil
	}

	grants, err := s.grantRepo.ListForIdentity(ctx, identityID, environmentID)
	if err != nil {
		return false, fmt.Errorf("failed to load grants: %w", err)
	}
	for _, g := range grants {
		if g.Action != action || g.ResourceLevel != level {
			continue
		}
		if MatchResourcePattern(g.ResourcePattern, resourcePath) {
			return true, nil
		}
	}
	return false, nil
}

// EffectivePermissions returns every permission an identity holds in an
// environment, deduplicated, with its source role.
func (s *Service) EffectivePermissions(ctx context.Context, identityID, environmentID string) ([]*EffectivePermission, error) {
	super, err := s.HasSuperuserAccess(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if super {
		perms, err := s.permRepo.List(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*EffectivePermission, 0, len(perms))
		for _, p := range perms {
			out = append(out, &EffectivePermission{
				Action:        p.Action,
				ResourceLevel: p.ResourceLevel,
				Source:        "superuser",
			})
		}
		return out, nil
	}

	assignments, err := s.assignRepo.ListForIdentity(ctx, identityID, environmentID)
	if err != nil {
		return nil, err
	}

	type seenKey struct {
		action  Action
		level   ResourceLevel
		pattern string
	}
	seen := make(map[seenKey]bool)
	perms, err := s.permRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	permByID := make(map[string]*Permission, len(perms))
	for _, p := range perms {
		permByID[p.ID] = p
	}

	var out []*EffectivePermission
	for _, a := range assignments {
		role, err := s.roleRepo.GetByID(ctx, a.RoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		grants, err := s.grantRepo.ListForRole(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		for _, g := range grants {
			p, ok := permByID[g.PermissionID]
			if !ok {
				continue
			}
			key := seenKey{action: p.Action, level: p.ResourceLevel}
			if g.ResourcePattern != nil {
				key.pattern = *g.ResourcePattern
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, &EffectivePermission{
				Action:          p.Action,
				ResourceLevel:   p.ResourceLevel,
				ResourcePattern: g.ResourcePattern,
				Source:          "role:" + role.Name,
			})
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Namespace-level grants (console side of permission sync)
// -----------------------------------------------------------------------------

// NamespacePermissions returns the console's flat role->actions map for
// one namespace: grants at namespace level whose pattern equals
// "tenant/namespace" exactly. Actions are sorted for stable output.
func (s *Service) NamespacePermissions(ctx context.Context, environmentID, tenant, namespace string) (map[string][]string, error) {
	path := tenant + "/" + namespace
	grants, err := s.grantRepo.ListByResource(ctx, environmentID, LevelNamespace, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespace grants: %w", err)
	}

	byRole := make(map[string]map[string]bool)
	for _, g := range grants {
		if byRole[g.RoleName] == nil {
			byRole[g.RoleName] = make(map[string]bool)
		}
		byRole[g.RoleName][string(g.Action)] = true
	}

	out := make(map[string][]string, len(byRole))
	for role, actions := range byRole {
		list := make([]string, 0, len(actions))
		for a := range actions {
			list = append(list, a)
		}
		sort.Strings(list)
		out[role] = list
	}
	return out, nil
}

// SetNamespacePermissions replaces a role's grants on one namespace
// with the given action set, creating the role if needed. Actions the
// catalog does not know at namespace level are skipped with a warning:
// provider-managed data favors availability over strict validation.
func (s *Service) SetNamespacePermissions(ctx context.Context, environmentID, tenant, namespace, roleName string, actions []string) error {
	path := tenant + "/" + namespace
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		role, err := s.roleRepo.GetByName(ctx, environmentID, roleName)
		if errors.Is(err, ErrNotFound) {
			now := time.Now()
			role = &Role{
				ID:            id.NewUUIDv7(),
				EnvironmentID: environmentID,
				Name:          roleName,
				Description:   "Imported from Pulsar permission sync",
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.roleRepo.Create(ctx, role); err != nil {
				return fmt.Errorf("failed to create role %q: %w", roleName, err)
			}
		} else if err != nil {
			return err
		}

		if err := s.grantRepo.RemoveByResource(ctx, role.ID, LevelNamespace, path); err != nil {
			return fmt.Errorf("failed to clear namespace grants: %w", err)
		}

		for _, raw := range actions {
			action, err := ParseAction(raw)
			if err != nil {
				slog.WarnContext(ctx, "skipping unknown action during sync",
					slog.String("action", raw), slog.String("role", roleName))
				continue
			}
			perm, err := s.catalog.Get(ctx, action, LevelNamespace)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					slog.WarnContext(ctx, "action not in catalog at namespace level, skipping",
						slog.String("action", raw), slog.String("role", roleName))
					continue
				}
				return err
			}
			grant := &RoleGrant{
				ID:              id.NewUUIDv7(),
				RoleID:          role.ID,
				PermissionID:    perm.ID,
				ResourcePattern: &path,
				CreatedAt:       time.Now(),
			}
			if err := s.grantRepo.Add(ctx, grant); err != nil && !errors.Is(err, ErrConflict) {
				return err
			}
		}
		return nil
	})
}

// RemoveNamespacePermissions deletes all of a role's grants on one
// namespace. Unknown roles are a no-op.
func (s *Service) RemoveNamespacePermissions(ctx context.Context, environmentID, tenant, namespace, roleName string) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		role, err := s.roleRepo.GetByName(ctx, environmentID, roleName)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.grantRepo.RemoveByResource(ctx, role.ID, LevelNamespace, tenant+"/"+namespace)
	})
}
