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

import "context"

// Change types delivered to post-commit hooks.
const (
	ChangeRoleCreated       = "role_created"
	ChangeRoleRenamed       = "role_renamed"
	ChangeRoleDeleted       = "role_deleted"
	ChangeGrantAdded        = "grant_added"
	ChangeGrantRemoved      = "grant_removed"
	ChangeAssignmentAdded   = "assignment_added"
	ChangeAssignmentRemoved = "assignment_removed"
	ChangeCatalogSeeded     = "catalog_seeded"
)

// ChangeEvent describes one committed mutation of the role/assignment
// store. Cross-cutting side effects (audit, cache invalidation,
// notification) subscribe to these instead of being inlined into the
// policy logic.
type ChangeEvent struct {
	Type          string
	EnvironmentID string
	RoleID        string
	RoleName      string
	IdentityID    string
	ActorID       string
	Action        Action
	ResourceLevel ResourceLevel
	Pattern       *string
}

// Hook receives change events after the owning transaction commits.
// Hooks must not fail the mutation; errors are theirs to log.
type Hook func(ctx context.Context, ev ChangeEvent)

// notify invokes every registered hook.
func (s *Service) notify(ctx context.Context, ev ChangeEvent) {
	for _, h := range s.hooks {
		h(ctx, ev)
	}
}
