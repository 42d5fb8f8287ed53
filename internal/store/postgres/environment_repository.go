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

// EnvironmentRepository implements rbac.EnvironmentRepository
type EnvironmentRepository struct {
	db *DB
}

// NewEnvironmentRepository creates a new environment repository
func NewEnvironmentRepository(db *DB) *EnvironmentRepository {
	return &EnvironmentRepository{db: db}
}

// GetByID retrieves an environment's boundary fields
func (r *EnvironmentRepository) GetByID(ctx context.Context, id string) (*rbac.Environment, error) {
	var env rbac.Environment
	var modeStr string

	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT id, name, rbac_enabled, sync_mode
		FROM environments
		WHERE id = $1
	`, id).Scan(&env.ID, &env.Name, &env.RBACEnabled, &modeStr)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("environment %q %w", id, rbac.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get environment: %w", err)
	}

	if env.SyncMode, err = rbac.ParseSyncMode(modeStr); err != nil {
		return nil, fmt.Errorf("environment %q: %w", id, err)
	}
	return &env, nil
}

// List retrieves every environment
func (r *EnvironmentRepository) List(ctx context.Context) ([]*rbac.Environment, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, name, rbac_enabled, sync_mode
		FROM environments
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}
	defer rows.Close()

	var envs []*rbac.Environment
	for rows.Next() {
		var env rbac.Environment
		var modeStr string

		if err := rows.Scan(&env.ID, &env.Name, &env.RBACEnabled, &modeStr); err != nil {
			return nil, fmt.Errorf("failed to scan environment: %w", err)
		}
		if env.SyncMode, err = rbac.ParseSyncMode(modeStr); err != nil {
			return nil, fmt.Errorf("environment %q: %w", env.ID, err)
		}
		envs = append(envs, &env)
	}

	return envs, rows.Err()
}

// SetRBACEnabled flips enforcement for an environment
func (r *EnvironmentRepository) SetRBACEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := r.db.q(ctx).Exec(ctx, `
		UPDATE environments SET rbac_enabled = $2 WHERE id = $1
	`, id, enabled)

	if err != nil {
		return fmt.Errorf("failed to update environment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("environment %q %w", id, rbac.ErrNotFound)
	}

	return nil
}
