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

// Package rbactest provides an in-memory implementation of the rbac
// repositories for tests.
package rbactest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
)

// Store holds all RBAC state in memory. It implements rbac.TxRunner;
// the repository views share its data.
type Store struct {
	mu           sync.Mutex
	permissions  map[string]*rbac.Permission
	roles        map[string]*rbac.Role
	grants       map[string]*rbac.RoleGrant
	assignments  map[string]*rbac.Assignment
	identities   map[string]*rbac.Identity
	environments map[string]*rbac.Environment
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		permissions:  make(map[string]*rbac.Permission),
		roles:        make(map[string]*rbac.Role),
		grants:       make(map[string]*rbac.RoleGrant),
		assignments:  make(map[string]*rbac.Assignment),
		identities:   make(map[string]*rbac.Identity),
		environments: make(map[string]*rbac.Environment),
	}
}

// WithTx runs fn directly; the in-memory store has no real transactions.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// AddIdentity seeds an identity.
func (s *Store) AddIdentity(id string, globalAdmin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[id] = &rbac.Identity{ID: id, IsGlobalAdmin: globalAdmin}
}

// AddEnvironment seeds an environment.
func (s *Store) AddEnvironment(id string, rbacEnabled bool, mode rbac.SyncMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.environments[id] = &rbac.Environment{ID: id, Name: id, RBACEnabled: rbacEnabled, SyncMode: mode}
}

// Identity returns the stored identity, or nil.
func (s *Store) Identity(id string) *rbac.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identities[id]
}

// Repository views.

func (s *Store) Permissions() rbac.PermissionRepository { return permRepo{s} }
func (s *Store) Roles() rbac.RoleRepository { return roleRepo{s} }
func (s *Store) Grants() rbac.GrantRepository { return grantRepo{s} }
func (s *Store) Assignments() rbac.AssignmentRepository { return assignRepo{s} }
func (s *Store) Identities() rbac.IdentityRepository { return identityRepo{s} }
func (s *Store) Environments() rbac.EnvironmentRepository { return envRepo{s} }

// -----------------------------------------------------------------------------
// permissions
// -----------------------------------------------------------------------------

type permRepo struct{ s *Store }

func (r permRepo) Create(ctx context.Context, p *rbac.Permission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.permissions {
		if existing.Action == p.Action && existing.ResourceLevel == p.ResourceLevel {
			return fmt.Errorf("permission %s:%s %w", p.Action, p.ResourceLevel, rbac.ErrConflict)
		}
	}
	cp := *p
	r.s.permissions[p.ID] = &cp
	return nil
}

func (r permRepo) GetByKey(ctx context.Context, action rbac.Action, level rbac.ResourceLevel) (*rbac.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.permissions {
		if p.Action == action && p.ResourceLevel == level {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("permission %s:%s %w", action, level, rbac.ErrNotFound)
}

func (r permRepo) List(ctx context.Context) ([]*rbac.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*rbac.Permission, 0, len(r.s.permissions))
	for _, p := range r.s.permissions {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------------------------------------------------------
// roles
// -----------------------------------------------------------------------------

type roleRepo struct{ s *Store }

func (r roleRepo) Create(ctx context.Context, role *rbac.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.roles {
		if existing.EnvironmentID == role.EnvironmentID && existing.Name == role.Name {
			return fmt.Errorf("role %q %w", role.Name, rbac.ErrConflict)
		}
	}
	cp := *role
	r.s.roles[role.ID] = &cp
	return nil
}

func (r roleRepo) GetByID(ctx context.Context, id string) (*rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, fmt.Errorf("role %q %w", id, rbac.ErrNotFound)
	}
	cp := *role
	return &cp, nil
}

func (r roleRepo) GetByName(ctx context.Context, environmentID, name string) (*rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.EnvironmentID == environmentID && role.Name == name {
			cp := *role
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("role %q %w", name, rbac.ErrNotFound)
}

func (r roleRepo) ListByEnvironment(ctx context.Context, environmentID string) ([]*rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*rbac.Role
	for _, role := range r.s.roles {
		if role.EnvironmentID == environmentID {
			cp := *role
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r roleRepo) Update(ctx context.Context, role *rbac.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[role.ID]; !ok {
		return fmt.Errorf("role %q %w", role.ID, rbac.ErrNotFound)
	}
	cp := *role
	r.s.roles[role.ID] = &cp
	return nil
}

func (r roleRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[id]; !ok {
		return fmt.Errorf("role %q %w", id, rbac.ErrNotFound)
	}
	delete(r.s.roles, id)
	for gid, g := range r.s.grants {
		if g.RoleID == id {
			delete(r.s.grants, gid)
		}
	}
	for aid, a := range r.s.assignments {
		if a.RoleID == id {
			delete(r.s.assignments, aid)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// grants
// -----------------------------------------------------------------------------

type grantRepo struct{ s *Store }

func samePattern(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (r grantRepo) Add(ctx context.Context, g *rbac.RoleGrant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.grants {
		if existing.RoleID == g.RoleID && existing.PermissionID == g.PermissionID && samePattern(existing.ResourcePattern, g.ResourcePattern) {
			return fmt.Errorf("grant %w", rbac.ErrConflict)
		}
	}
	cp := *g
	r.s.grants[g.ID] = &cp
	return nil
}

func (r grantRepo) Remove(ctx context.Context, roleID, permissionID string, pattern *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for gid, g := range r.s.grants {
		if g.RoleID == roleID && g.PermissionID == permissionID && samePattern(g.ResourcePattern, pattern) {
			delete(r.s.grants, gid)
			return nil
		}
	}
	return fmt.Errorf("grant %w", rbac.ErrNotFound)
}

func (r grantRepo) ListForRole(ctx context.Context, roleID string) ([]*rbac.RoleGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*rbac.RoleGrant
	for _, g := range r.s.grants {
		if g.RoleID == roleID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r grantRepo) ListForIdentity(ctx context.Context, identityID, environmentID string) ([]*rbac.EvaluatedGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*rbac.EvaluatedGrant
	for _, a := range r.s.assignments {
		if a.IdentityID != identityID {
			continue
		}
		role, ok := r.s.roles[a.RoleID]
		if !ok || role.EnvironmentID != environmentID {
			continue
		}
		for _, g := range r.s.grants {
			if g.RoleID != role.ID {
				continue
			}
			perm, ok := r.s.permissions[g.PermissionID]
			if !ok {
				continue
			}
			out = append(out, &rbac.EvaluatedGrant{
				Action:          perm.Action,
				ResourceLevel:   perm.ResourceLevel,
				ResourcePattern: g.ResourcePattern,
			})
		}
	}
	return out, nil
}

func (r grantRepo) ListByResource(ctx context.Context, environmentID string, level rbac.ResourceLevel, path string) ([]*rbac.ResourceGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*rbac.ResourceGrant
	for _, g := range r.s.grants {
		role, ok := r.s.roles[g.RoleID]
		if !ok || role.EnvironmentID != environmentID {
			continue
		}
		perm, ok := r.s.permissions[g.PermissionID]
		if !ok || perm.ResourceLevel != level {
			continue
		}
		if g.ResourcePattern == nil || *g.ResourcePattern != path {
			continue
		}
		out = append(out, &rbac.ResourceGrant{
			RoleID:   role.ID,
			RoleName: role.Name,
			Action:   perm.Action,
		})
	}
	return out, nil
}

func (r grantRepo) RemoveByResource(ctx context.Context, roleID string, level rbac.ResourceLevel, path string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for gid, g := range r.s.grants {
		if g.RoleID != roleID {
			continue
		}
		perm, ok := r.s.permissions[g.PermissionID]
		if !ok || perm.ResourceLevel != level {
			continue
		}
		if g.ResourcePattern != nil && *g.ResourcePattern == path {
			delete(r.s.grants, gid)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// assignments
// -----------------------------------------------------------------------------

type assignRepo struct{ s *Store }

func (r assignRepo) Assign(ctx context.Context, a *rbac.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.assignments {
		if existing.IdentityID == a.IdentityID && existing.RoleID == a.RoleID {
			return fmt.Errorf("assignment %w", rbac.ErrConflict)
		}
	}
	cp := *a
	r.s.assignments[a.ID] = &cp
	return nil
}

func (r assignRepo) Remove(ctx context.Context, identityID, roleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for aid, a := range r.s.assignments {
		if a.IdentityID == identityID && a.RoleID == roleID {
			delete(r.s.assignments, aid)
			return nil
		}
	}
	return fmt.Errorf("assignment %w", rbac.ErrNotFound)
}

func (r assignRepo) ListForIdentity(ctx context.Context, identityID, environmentID string) ([]*rbac.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*rbac.Assignment
	for _, a := range r.s.assignments {
		if a.IdentityID != identityID {
			continue
		}
		role, ok := r.s.roles[a.RoleID]
		if !ok || role.EnvironmentID != environmentID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r assignRepo) ListForRole(ctx context.Context, roleID string) ([]*rbac.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*rbac.Assignment
	for _, a := range r.s.assignments {
		if a.RoleID == roleID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r assignRepo) HasRoleName(ctx context.Context, identityID, roleName string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.assignments {
		if a.IdentityID != identityID {
			continue
		}
		if role, ok := r.s.roles[a.RoleID]; ok && role.Name == roleName {
			return true, nil
		}
	}
	return false, nil
}

// -----------------------------------------------------------------------------
// identities & environments
// -----------------------------------------------------------------------------

type identityRepo struct{ s *Store }

func (r identityRepo) GetByID(ctx context.Context, id string) (*rbac.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	identity, ok := r.s.identities[id]
	if !ok {
		return nil, fmt.Errorf("identity %q %w", id, rbac.ErrNotFound)
	}
	cp := *identity
	return &cp, nil
}

func (r identityRepo) SetGlobalAdmin(ctx context.Context, id string, admin bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	identity, ok := r.s.identities[id]
	if !ok {
		return fmt.Errorf("identity %q %w", id, rbac.ErrNotFound)
	}
	identity.IsGlobalAdmin = admin
	return nil
}

type envRepo struct{ s *Store }

func (r envRepo) GetByID(ctx context.Context, id string) (*rbac.Environment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	env, ok := r.s.environments[id]
	if !ok {
		return nil, fmt.Errorf("environment %q %w", id, rbac.ErrNotFound)
	}
	cp := *env
	return &cp, nil
}

func (r envRepo) List(ctx context.Context) ([]*rbac.Environment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*rbac.Environment, 0, len(r.s.environments))
	for _, env := range r.s.environments {
		cp := *env
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r envRepo) SetRBACEnabled(ctx context.Context, id string, enabled bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	env, ok := r.s.environments[id]
	if !ok {
		return fmt.Errorf("environment %q %w", id, rbac.ErrNotFound)
	}
	env.RBACEnabled = enabled
	return nil
}
