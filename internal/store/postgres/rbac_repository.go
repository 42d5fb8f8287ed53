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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
)

// PermissionRepository implements rbac.PermissionRepository
type PermissionRepository struct {
	db *DB
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// Create inserts a catalog entry
func (r *PermissionRepository) Create(ctx context.Context, p *rbac.Permission) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO permissions (
			id, action, resource_level, description, created_at
		) VALUES ($1, $2, $3, $4, $5)
	`,
		p.ID, string(p.Action), string(p.ResourceLevel), p.Description, p.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("permission %s:%s %w", p.Action, p.ResourceLevel, rbac.ErrConflict)
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}

	return nil
}

// GetByKey retrieves a catalog entry by (action, resource level)
func (r *PermissionRepository) GetByKey(ctx context.Context, action rbac.Action, level rbac.ResourceLevel) (*rbac.Permission, error) {
	var p rbac.Permission
	var actionStr, levelStr string

	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT id, action, resource_level, description, created_at
		FROM permissions
		WHERE action = $1 AND resource_level = $2
	`, string(action), string(level)).Scan(
		&p.ID, &actionStr, &levelStr, &p.Description, &p.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("permission %s:%s %w", action, level, rbac.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	p.Action = rbac.Action(actionStr)
	p.ResourceLevel = rbac.ResourceLevel(levelStr)
	return &p, nil
}

// List retrieves the full catalog
func (r *PermissionRepository) List(ctx context.Context) ([]*rbac.Permission, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, action, resource_level, description, created_at
		FROM permissions
		ORDER BY resource_level, action
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []*rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		var actionStr, levelStr string

		if err := rows.Scan(&p.ID, &actionStr, &levelStr, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.Action = rbac.Action(actionStr)
		p.ResourceLevel = rbac.ResourceLevel(levelStr)
		perms = append(perms, &p)
	}

	return perms, rows.Err()
}

// RoleRepository implements rbac.RoleRepository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create inserts a role
func (r *RoleRepository) Create(ctx context.Context, role *rbac.Role) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO roles (
			id, environment_id, name, description, is_system, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		role.ID, role.EnvironmentID, role.Name, role.Description,
		role.IsSystem, role.CreatedAt, role.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("role %q %w", role.Name, rbac.ErrConflict)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	return nil
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*rbac.Role, error) {
	var role rbac.Role

	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT id, environment_id, name, description, is_system, created_at, updated_at
		FROM roles
		WHERE id = $1
	`, id).Scan(
		&role.ID, &role.EnvironmentID, &role.Name, &role.Description,
		&role.IsSystem, &role.CreatedAt, &role.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("role %q %w", id, rbac.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// GetByName retrieves a role by name within an environment
func (r *RoleRepository) GetByName(ctx context.Context, environmentID, name string) (*rbac.Role, error) {
	var role rbac.Role

	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT id, environment_id, name, description, is_system, created_at, updated_at
		FROM roles
		WHERE environment_id = $1 AND name = $2
	`, environmentID, name).Scan(
		&role.ID, &role.EnvironmentID, &role.Name, &role.Description,
		&role.IsSystem, &role.CreatedAt, &role.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("role %q %w", name, rbac.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// ListByEnvironment retrieves every role in an environment
func (r *RoleRepository) ListByEnvironment(ctx context.Context, environmentID string) ([]*rbac.Role, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, environment_id, name, description, is_system, created_at, updated_at
		FROM roles
		WHERE environment_id = $1
		ORDER BY name
	`, environmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*rbac.Role
	for rows.Next() {
		var role rbac.Role
		if err := rows.Scan(
			&role.ID, &role.EnvironmentID, &role.Name, &role.Description,
			&role.IsSystem, &role.CreatedAt, &role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, &role)
	}

	return roles, rows.Err()
}

// Update updates a role's name and description
func (r *RoleRepository) Update(ctx context.Context, role *rbac.Role) error {
	result, err := r.db.q(ctx).Exec(ctx, `
		UPDATE roles SET
			name = $2,
			description = $3,
			updated_at = $4
		WHERE id = $1
	`,
		role.ID, role.Name, role.Description, role.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("role %q %w", role.Name, rbac.ErrConflict)
		}
		return fmt.Errorf("failed to update role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("role %q %w", role.ID, rbac.ErrNotFound)
	}

	return nil
}

// Delete removes a role. Grants and assignments cascade.
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.q(ctx).Exec(ctx, `
		DELETE FROM roles WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("role %q %w", id, rbac.ErrNotFound)
	}

	return nil
}

// GrantRepository implements rbac.GrantRepository
type GrantRepository struct {
	db *DB
}

// NewGrantRepository creates a new grant repository
func NewGrantRepository(db *DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// Add inserts a role-permission grant
func (r *GrantRepository) Add(ctx context.Context, g *rbac.RoleGrant) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO role_grants (
			id, role_id, permission_id, resource_pattern, created_at
		) VALUES ($1, $2, $3, $4, $5)
	`,
		g.ID, g.RoleID, g.PermissionID, g.ResourcePattern, g.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("grant %w", rbac.ErrConflict)
		}
		return fmt.Errorf("failed to add grant: %w", err)
	}

	return nil
}

// Remove deletes a grant identified by (role, permission, pattern)
func (r *GrantRepository) Remove(ctx context.Context, roleID, permissionID string, pattern *string) error {
	result, err := r.db.q(ctx).Exec(ctx, `
		DELETE FROM role_grants
		WHERE role_id = $1 AND permission_id = $2
		  AND COALESCE(resource_pattern, '') = COALESCE($3, '')
	`, roleID, permissionID, pattern)

	if err != nil {
		return fmt.Errorf("failed to remove grant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("grant %w", rbac.ErrNotFound)
	}

	return nil
}

// ListForRole retrieves all grants of a role
func (r *GrantRepository) ListForRole(ctx context.Context, roleID string) ([]*rbac.RoleGrant, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, role_id, permission_id, resource_pattern, created_at
		FROM role_grants
		WHERE role_id = $1
		ORDER BY created_at
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []*rbac.RoleGrant
	for rows.Next() {
		var g rbac.RoleGrant
		if err := rows.Scan(&g.ID, &g.RoleID, &g.PermissionID, &g.ResourcePattern, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, &g)
	}

	return grants, rows.Err()
}

// ListForIdentity joins the identity's assignments in an environment
// down to evaluable grants. One round-trip per permission check.
func (r *GrantRepository) ListForIdentity(ctx context.Context, identityID, environmentID string) ([]*rbac.EvaluatedGrant, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT p.action, p.resource_level, g.resource_pattern
		FROM assignments a
		JOIN roles r ON r.id = a.role_id
		JOIN role_grants g ON g.role_id = r.id
		JOIN permissions p ON p.id = g.permission_id
		WHERE a.identity_id = $1 AND r.environment_id = $2
	`, identityID, environmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identity grants: %w", err)
	}
	defer rows.Close()

	var grants []*rbac.EvaluatedGrant
	for rows.Next() {
		var g rbac.EvaluatedGrant
		var actionStr, levelStr string

		if err := rows.Scan(&actionStr, &levelStr, &g.ResourcePattern); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		g.Action = rbac.Action(actionStr)
		g.ResourceLevel = rbac.ResourceLevel(levelStr)
		grants = append(grants, &g)
	}

	return grants, rows.Err()
}

// ListByResource retrieves grants at a level whose pattern equals the
// path exactly, joined with role and permission.
func (r *GrantRepository) ListByResource(ctx context.Context, environmentID string, level rbac.ResourceLevel, path string) ([]*rbac.ResourceGrant, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT r.id, r.name, p.action
		FROM role_grants g
		JOIN roles r ON r.id = g.role_id
		JOIN permissions p ON p.id = g.permission_id
		WHERE r.environment_id = $1
		  AND p.resource_level = $2
		  AND g.resource_pattern = $3
	`, environmentID, string(level), path)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource grants: %w", err)
	}
	defer rows.Close()

	var grants []*rbac.ResourceGrant
	for rows.Next() {
		var g rbac.ResourceGrant
		var actionStr string

		if err := rows.Scan(&g.RoleID, &g.RoleName, &actionStr); err != nil {
			return nil, fmt.Errorf("failed to scan resource grant: %w", err)
		}
		g.Action = rbac.Action(actionStr)
		grants = append(grants, &g)
	}

	return grants, rows.Err()
}

// RemoveByResource deletes all grants of a role at a level whose
// pattern equals the path exactly.
func (r *GrantRepository) RemoveByResource(ctx context.Context, roleID string, level rbac.ResourceLevel, path string) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		DELETE FROM role_grants g
		USING permissions p
		WHERE g.permission_id = p.id
		  AND g.role_id = $1
		  AND p.resource_level = $2
		  AND g.resource_pattern = $3
	`, roleID, string(level), path)

	if err != nil {
		return fmt.Errorf("failed to remove resource grants: %w", err)
	}
	return nil
}

// AssignmentRepository implements rbac.AssignmentRepository
type AssignmentRepository struct {
	db *DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Assign binds an identity to a role
func (r *AssignmentRepository) Assign(ctx context.Context, a *rbac.Assignment) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO assignments (
			id, identity_id, role_id, assigned_by, created_at
		) VALUES ($1, $2, $3, $4, $5)
	`,
		a.ID, a.IdentityID, a.RoleID, a.AssignedBy, a.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("assignment %w", rbac.ErrConflict)
		}
		return fmt.Errorf("failed to assign role: %w", err)
	}

	return nil
}

// Remove deletes an identity-role binding
func (r *AssignmentRepository) Remove(ctx context.Context, identityID, roleID string) error {
	result, err := r.db.q(ctx).Exec(ctx, `
		DELETE FROM assignments
		WHERE identity_id = $1 AND role_id = $2
	`, identityID, roleID)

	if err != nil {
		return fmt.Errorf("failed to remove assignment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("assignment %w", rbac.ErrNotFound)
	}

	return nil
}

// ListForIdentity retrieves the identity's assignments in an environment
func (r *AssignmentRepository) ListForIdentity(ctx context.Context, identityID, environmentID string) ([]*rbac.Assignment, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT a.id, a.identity_id, a.role_id, a.assigned_by, a.created_at
		FROM assignments a
		JOIN roles r ON r.id = a.role_id
		WHERE a.identity_id = $1 AND r.environment_id = $2
		ORDER BY a.created_at
	`, identityID, environmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// ListForRole retrieves every assignment of a role
func (r *AssignmentRepository) ListForRole(ctx context.Context, roleID string) ([]*rbac.Assignment, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, identity_id, role_id, assigned_by, created_at
		FROM assignments
		WHERE role_id = $1
		ORDER BY created_at
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// HasRoleName reports whether the identity holds a role with this name
// in any environment
func (r *AssignmentRepository) HasRoleName(ctx context.Context, identityID, roleName string) (bool, error) {
	var exists bool
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM assignments a
			JOIN roles r ON r.id = a.role_id
			WHERE a.identity_id = $1 AND r.name = $2
		)
	`, identityID, roleName).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("failed to check role membership: %w", err)
	}
	return exists, nil
}

func scanAssignments(rows pgx.Rows) ([]*rbac.Assignment, error) {
	var assignments []*rbac.Assignment
	for rows.Next() {
		var a rbac.Assignment
		if err := rows.Scan(&a.ID, &a.IdentityID, &a.RoleID, &a.AssignedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}
