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

package oidc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsarconsole/pulsarconsole/internal/oidc"
	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
	"github.com/pulsarconsole/pulsarconsole/internal/rbac/rbactest"
)

type fixture struct {
	store      *rbactest.Store
	svc        *rbac.Service
	reconciler *oidc.Reconciler
	roles      map[string]string // name -> id
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := rbactest.NewStore()
	catalog, err := rbac.NewCatalogCache(store.Permissions())
	require.NoError(t, err)
	svc := rbac.NewService(
		store.Permissions(), store.Roles(), store.Grants(), store.Assignments(),
		store.Identities(), store.Environments(), catalog, store,
	)

	ctx := context.Background()
	roles := make(map[string]string)
	for _, name := range []string{"developer", "operator", "viewer"} {
		role, err := svc.CreateRole(ctx, "env-1", name, "")
		require.NoError(t, err)
		roles[name] = role.ID
	}
	store.AddIdentity("user-1", false)

	return &fixture{
		store:      store,
		svc:        svc,
		reconciler: oidc.NewReconciler(svc, store.Identities(), nil),
		roles:      roles,
	}
}

func (f *fixture) roleNames(t *testing.T, identityID string) []string {
	t.Helper()
	assignments, err := f.svc.ListAssignments(context.Background(), identityID, "env-1")
	require.NoError(t, err)
	var names []string
	for _, a := range assignments {
		role, err := f.svc.GetRole(context.Background(), a.RoleID)
		require.NoError(t, err)
		names = append(names, role.Name)
	}
	return names
}

func TestApply_MapsGroupsToRoles(t *testing.T) {
	f := newFixture(t)
	provider := oidc.Provider{
		EnvironmentID: "env-1",
		GroupRoleMappings: map[string]string{
			"eng":        "developer",
			"ops":        "operator",
			"unassigned": "viewer",
		},
	}

	err := f.reconciler.Apply(context.Background(), "user-1", []string{"eng", "ops", "sales"}, provider)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"developer", "operator"}, f.roleNames(t, "user-1"))
}

func TestApply_DefaultRoleAlwaysAdded(t *testing.T) {
	f := newFixture(t)
	provider := oidc.Provider{
		EnvironmentID:   "env-1",
		DefaultRoleName: "viewer",
	}

	err := f.reconciler.Apply(context.Background(), "user-1", []string{"sales"}, provider)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"viewer"}, f.roleNames(t, "user-1"))
}

func TestApply_UnknownMappedRoleSkipped(t *testing.T) {
	f := newFixture(t)
	provider := oidc.Provider{
		EnvironmentID: "env-1",
		GroupRoleMappings: map[string]string{
			"eng": "developer",
			"ops": "no-such-role",
		},
	}

	err := f.reconciler.Apply(context.Background(), "user-1", []string{"eng", "ops"}, provider)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"developer"}, f.roleNames(t, "user-1"))
}

func TestApply_AddOnlyNeverRemoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AssignRole(ctx, "user-1", f.roles["operator"], nil)
	require.NoError(t, err)

	provider := oidc.Provider{
		EnvironmentID:     "env-1",
		GroupRoleMappings: map[string]string{"eng": "developer"},
		SyncOnLogin:       false,
	}

	// Groups no longer back the operator assignment; it must survive.
	err = f.reconciler.Apply(ctx, "user-1", []string{"eng"}, provider)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"developer", "operator"}, f.roleNames(t, "user-1"))

	// Re-applying is a no-op, not a conflict.
	err = f.reconciler.Apply(ctx, "user-1", []string{"eng"}, provider)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"developer", "operator"}, f.roleNames(t, "user-1"))
}

func TestApply_SyncOnLoginRemovesStaleAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AssignRole(ctx, "user-1", f.roles["operator"], nil)
	require.NoError(t, err)

	provider := oidc.Provider{
		EnvironmentID:     "env-1",
		GroupRoleMappings: map[string]string{"eng": "developer"},
		SyncOnLogin:       true,
	}

	err = f.reconciler.Apply(ctx, "user-1", []string{"eng"}, provider)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"developer"}, f.roleNames(t, "user-1"))

	// No groups at all: everything in the environment goes.
	err = f.reconciler.Apply(ctx, "user-1", nil, provider)
	require.NoError(t, err)
	assert.Empty(t, f.roleNames(t, "user-1"))
}

func TestApply_AdminFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	provider := oidc.Provider{
		EnvironmentID: "env-1",
		AdminGroups:   []string{"platform-admins"},
	}

	err := f.reconciler.Apply(ctx, "user-1", []string{"platform-admins"}, provider)
	require.NoError(t, err)
	assert.True(t, f.store.Identity("user-1").IsGlobalAdmin)

	// Without sync_on_login the flag is sticky.
	err = f.reconciler.Apply(ctx, "user-1", []string{"eng"}, provider)
	require.NoError(t, err)
	assert.True(t, f.store.Identity("user-1").IsGlobalAdmin)

	// With sync_on_login it is cleared when no admin group matches.
	provider.SyncOnLogin = true
	err = f.reconciler.Apply(ctx, "user-1", []string{"eng"}, provider)
	require.NoError(t, err)
	assert.False(t, f.store.Identity("user-1").IsGlobalAdmin)
}
