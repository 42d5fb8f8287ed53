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

// IdentityRepository implements rbac.IdentityRepository. Identity rows
// are created by the login subsystem; this engine only reads the
// boundary fields and flips the global-admin flag.
type IdentityRepository struct {
	db *DB
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// GetByID retrieves an identity's boundary fields
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*rbac.Identity, error) {
	var identity rbac.Identity

	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT id, is_global_admin
		FROM identities
		WHERE id = $1
	`, id).Scan(&identity.ID, &identity.IsGlobalAdmin)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("identity %q %w", id, rbac.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return &identity, nil
}

// SetGlobalAdmin flips the global-admin flag
func (r *IdentityRepository) SetGlobalAdmin(ctx context.Context, id string, admin bool) error {
	result, err := r.db.q(ctx).Exec(ctx, `
		UPDATE identities SET is_global_admin = $2 WHERE id = $1
	`, id, admin)

	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("identity %q %w", id, rbac.ErrNotFound)
	}

	return nil
}
