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
	"time"
)

// Domain errors
var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("already exists")
	ErrForbidden           = errors.New("operation forbidden")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUpstreamUnavailable = errors.New("pulsar cluster unavailable")
)

// Permission is an immutable catalog entry: a verb at a resource level.
// Unique per (action, resource_level).
type Permission struct {
	ID            string
	Action        Action
	ResourceLevel ResourceLevel
	Description   string
	CreatedAt     time.Time
}

// PermissionKey identifies a catalog entry.
type PermissionKey struct {
	Action Action
	Level  ResourceLevel
}

// Key returns the catalog lookup key for a permission.
func (p *Permission) Key() PermissionKey {
	return PermissionKey{Action: p.Action, Level: p.ResourceLevel}
}

// Role is an environment-scoped bundle of permission grants.
// Name is unique within an environment. System roles cannot be
// renamed or deleted.
type Role struct {
	ID            string
	EnvironmentID string
	Name          string
	Description   string
	IsSystem      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RoleGrant attaches a permission to a role, optionally scoped to a
// resource pattern. Unique per (role, permission, pattern).
type RoleGrant struct {
	ID              string
	RoleID          string
	PermissionID    string
	ResourcePattern *string
	CreatedAt       time.Time
}

// Assignment binds an identity to a role. Unique per (identity, role).
// AssignedBy is empty for system-made assignments (seeding, group sync).
type Assignment struct {
	ID         string
	IdentityID string
	RoleID     string
	AssignedBy *string
	CreatedAt  time.Time
}

// Identity carries the boundary fields this engine reads. Identity
// creation and authentication live in the login subsystem.
type Identity struct {
	ID            string
	IsGlobalAdmin bool
}

// Environment carries the boundary fields this engine reads.
type Environment struct {
	ID          string
	Name        string
	RBACEnabled bool
	SyncMode    SyncMode
}

// EvaluatedGrant is a grant joined with its permission, as consumed by
// the policy evaluator.
type EvaluatedGrant struct {
	Action          Action
	ResourceLevel   ResourceLevel
	ResourcePattern *string
}

// ResourceGrant is a grant joined with its role and permission for a
// concrete resource path, as consumed by the sync engine.
type ResourceGrant struct {
	RoleID   string
	RoleName string
	Action   Action
}

// EffectivePermission describes one permission an identity holds and
// where it came from.
type EffectivePermission struct {
	Action          Action        `json:"action"`
	ResourceLevel   ResourceLevel `json:"resource_level"`
	ResourcePattern *string       `json:"resource_pattern"`
	Source          string        `json:"source"`
}

// PermissionRepository persists the permission catalog.
type PermissionRepository interface {
	Create(ctx context.Context, p *Permission) error
	GetByKey(ctx context.Context, action Action, level ResourceLevel) (*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
}

// RoleRepository persists roles.
type RoleRepository interface {
	Create(ctx context.Context, r *Role) error
	GetByID(ctx context.Context, id string) (*Role, error)
	GetByName(ctx context.Context, environmentID, name string) (*Role, error)
	ListByEnvironment(ctx context.Context, environmentID string) ([]*Role, error)
	Update(ctx context.Context, r *Role) error
	Delete(ctx context.Context, id string) error
}

// GrantRepository persists role-permission grants.
type GrantRepository interface {
	Add(ctx context.Context, g *RoleGrant) error
	Remove(ctx context.Context, roleID, permissionID string, pattern *string) error
	ListForRole(ctx context.Context, roleID string) ([]*RoleGrant, error)

	// ListForIdentity returns every grant reachable through the
	// identity's role assignments in one environment.
	ListForIdentity(ctx context.Context, identityID, environmentID string) ([]*EvaluatedGrant, error)

	// ListByResource returns grants at a level whose pattern is exactly
	// the given path, joined with role and permission.
	ListByResource(ctx context.Context, environmentID string, level ResourceLevel, path string) ([]*ResourceGrant, error)

	// RemoveByResource deletes all grants of a role at a level whose
	// pattern is exactly the given path.
	RemoveByResource(ctx context.Context, roleID string, level ResourceLevel, path string) error
}

// AssignmentRepository persists identity-role assignments.
type AssignmentRepository interface {
	Assign(ctx context.Context, a *Assignment) error
	Remove(ctx context.Context, identityID, roleID string) error
	ListForIdentity(ctx context.Context, identityID, environmentID string) ([]*Assignment, error)
	ListForRole(ctx context.Context, roleID string) ([]*Assignment, error)

	// HasRoleName reports whether the identity holds a role with this
	// name in any environment.
	HasRoleName(ctx context.Context, identityID, roleName string) (bool, error)
}

// IdentityRepository reads and updates the identity boundary fields.
type IdentityRepository interface {
	GetByID(ctx context.Context, id string) (*Identity, error)
	SetGlobalAdmin(ctx context.Context, id string, admin bool) error
}

// EnvironmentRepository reads and updates the environment boundary fields.
type EnvironmentRepository interface {
	GetByID(ctx context.Context, id string) (*Environment, error)
	List(ctx context.Context) ([]*Environment, error)
	SetRBACEnabled(ctx context.Context, id string, enabled bool) error
}

// TxRunner runs a function inside a single storage transaction. Every
// mutating service operation executes in exactly one transaction so no
// partial writes are observable.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
