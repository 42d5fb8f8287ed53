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

package rbac_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
	"github.com/pulsarconsole/pulsarconsole/internal/rbac/rbactest"
)

func newTestService(t *testing.T, store *rbactest.Store) *rbac.Service {
	t.Helper()
	catalog, err := rbac.NewCatalogCache(store.Permissions())
	require.NoError(t, err)
	return rbac.NewService(
		store.Permissions(),
		store.Roles(),
		store.Grants(),
		store.Assignments(),
		store.Identities(),
		store.Environments(),
		catalog,
		store,
	)
}

func TestEnsureCatalog_Idempotent(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.EnsureCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, first, len(rbac.PermissionDefinitions))

	second, err := svc.EnsureCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, second, len(rbac.PermissionDefinitions))

	perms, err := svc.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, len(rbac.PermissionDefinitions))

	// Same rows resolve on both passes.
	key := rbac.PermissionKey{Action: rbac.ActionRead, Level: rbac.LevelCluster}
	assert.Equal(t, first[key].ID, second[key].ID)
}

func TestSeedEnvironment_CreatesSystemRoles(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.SeedEnvironment(ctx, "env-1"))
	require.NoError(t, svc.SeedEnvironment(ctx, "env-1")) // idempotent

	roles, err := svc.ListRoles(ctx, "env-1")
	require.NoError(t, err)
	assert.Len(t, roles, len(rbac.SystemRoles))
	for _, r := range roles {
		assert.True(t, r.IsSystem, "seeded role %q must be a system role", r.Name)
	}

	super, err := svc.GetRoleByName(ctx, "env-1", rbac.RoleSuperuser)
	require.NoError(t, err)
	grants, err := svc.ListRoleGrants(ctx, super.ID)
	require.NoError(t, err)
	assert.Len(t, grants, len(rbac.SystemRoles[rbac.RoleSuperuser].Grants))
}

func TestCheckPermission_GlobalAdminBypass(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	store.AddIdentity("admin-1", true)
	store.AddEnvironment("env-1", true, rbac.SyncModeConsoleOnly)

	for _, level := range []rbac.ResourceLevel{rbac.LevelCluster, rbac.LevelTenant, rbac.LevelNamespace, rbac.LevelTopic} {
		allowed, err := svc.CheckPermission(ctx, "admin-1", "env-1", rbac.ActionAdmin, level, "anything/at/all")
		require.NoError(t, err)
		assert.True(t, allowed, "global admin must pass at level %s", level)
	}
}

func TestCheckPermission_SuperuserRoleInAnyEnvironment(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	store.AddIdentity("op-1", false)
	store.AddEnvironment("env-a", true, rbac.SyncModeConsoleOnly)
	store.AddEnvironment("env-b", true, rbac.SyncModeConsoleOnly)
	require.NoError(t, svc.SeedEnvironment(ctx, "env-a"))
	require.NoError(t, svc.SeedEnvironment(ctx, "env-b"))

	super, err := svc.GetRoleByName(ctx, "env-a", rbac.RoleSuperuser)
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, "op-1", super.ID, nil)
	require.NoError(t, err)

	// Superuser in env-a is authoritative in env-b too.
	allowed, err := svc.CheckPermission(ctx, "op-1", "env-b", rbac.ActionWrite, rbac.LevelTenant, "tenantX")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckPermission_RBACDisabledAllowsAll(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	store.AddIdentity("user-1", false)
	store.AddEnvironment("env-1", false, rbac.SyncModeConsoleOnly)

	allowed, err := svc.CheckPermission(ctx, "user-1", "env-1", rbac.ActionAdmin, rbac.LevelCluster, "")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckPermission_PatternScopedGrant(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	store.AddIdentity("user-1", false)
	store.AddEnvironment("env-1", true, rbac.SyncModeConsoleOnly)
	_, err := svc.EnsureCatalog(ctx)
	require.NoError(t, err)

	role, err := svc.CreateRole(ctx, "env-1", "tenant-a-reader", "reads tenantA namespaces")
	require.NoError(t, err)
	_, err = svc.GrantPermission(ctx, role.ID, rbac.ActionRead, rbac.LevelNamespace, strPtr("tenantA/*"))
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, "user-1", role.ID, nil)
	require.NoError(t, err)

	allowed, err := svc.CheckPermission(ctx, "user-1", "env-1", rbac.ActionRead, rbac.LevelNamespace, "tenantA/ns1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = svc.CheckPermission(ctx, "user-1", "env-1", rbac.ActionRead, rbac.LevelNamespace, "tenantAB/ns1")
	require.NoError(t, err)
	assert.False(t, allowed, "pattern must not match across segment boundaries")

	// Different action at the same path is denied.
	allowed, err = svc.CheckPermission(ctx, "user-1", "env-1", rbac.ActionWrite, rbac.LevelNamespace, "tenantA/ns1")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckPermission_MissingDataIsDenyNotError(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	store.AddEnvironment("env-1", true, rbac.SyncModeConsoleOnly)

	// Identity was never stored; the check degrades to a plain deny.
	allowed, err := svc.CheckPermission(ctx, "ghost", "env-1", rbac.ActionRead, rbac.LevelCluster, "")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCreateRole_DuplicateNameConflict(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, "env-1", "team-x", "")
	require.NoError(t, err)

	_, err = svc.CreateRole(ctx, "env-1", "team-x", "")
	assert.ErrorIs(t, err, rbac.ErrConflict)

	// Same name in another environment is fine.
	_, err = svc.CreateRole(ctx, "env-2", "team-x", "")
	assert.NoError(t, err)
}

func TestSystemRole_RenameAndDeleteForbidden(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.SeedEnvironment(ctx, "env-1"))
	super, err := svc.GetRoleByName(ctx, "env-1", rbac.RoleSuperuser)
	require.NoError(t, err)

	_, err = svc.RenameRole(ctx, super.ID, "root", "")
	assert.ErrorIs(t, err, rbac.ErrForbidden)

	err = svc.DeleteRole(ctx, super.ID)
	assert.ErrorIs(t, err, rbac.ErrForbidden)

	// Still queryable afterwards.
	again, err := svc.GetRole(ctx, super.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleSuperuser, again.Name)

	// Description edits on system roles are allowed.
	updated, err := svc.RenameRole(ctx, super.ID, "", "all access")
	require.NoError(t, err)
	assert.Equal(t, "all access", updated.Description)
	assert.Equal(t, rbac.RoleSuperuser, updated.Name)
}

func TestAssignRole_Idempotence(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	store.AddIdentity("user-1", false)
	role, err := svc.CreateRole(ctx, "env-1", "team-x", "")
	require.NoError(t, err)

	_, err = svc.AssignRole(ctx, "user-1", role.ID, nil)
	require.NoError(t, err)

	_, err = svc.AssignRole(ctx, "user-1", role.ID, nil)
	assert.ErrorIs(t, err, rbac.ErrConflict)

	assignments, err := svc.ListAssignments(ctx, "user-1", "env-1")
	require.NoError(t, err)
	assert.Len(t, assignments, 1, "duplicate assign must never produce two rows")
}

func TestSetIdentityRoles_ReplacesWithinEnvironment(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	store.AddIdentity("user-1", false)
	a, err := svc.CreateRole(ctx, "env-1", "role-a", "")
	require.NoError(t, err)
	b, err := svc.CreateRole(ctx, "env-1", "role-b", "")
	require.NoError(t, err)
	other, err := svc.CreateRole(ctx, "env-2", "role-other", "")
	require.NoError(t, err)

	_, err = svc.AssignRole(ctx, "user-1", a.ID, nil)
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, "user-1", other.ID, nil)
	require.NoError(t, err)

	require.NoError(t, svc.SetIdentityRoles(ctx, "user-1", "env-1", []string{b.ID}, nil))

	inEnv, err := svc.ListAssignments(ctx, "user-1", "env-1")
	require.NoError(t, err)
	require.Len(t, inEnv, 1)
	assert.Equal(t, b.ID, inEnv[0].RoleID)

	// Assignments in other environments survive.
	otherEnv, err := svc.ListAssignments(ctx, "user-1", "env-2")
	require.NoError(t, err)
	assert.Len(t, otherEnv, 1)
}

func TestHooks_FireAfterMutations(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	var events []rbac.ChangeEvent
	svc.AddHook(func(ctx context.Context, ev rbac.ChangeEvent) {
		events = append(events, ev)
	})

	store.AddIdentity("user-1", false)
	role, err := svc.CreateRole(ctx, "env-1", "team-x", "")
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, "user-1", role.ID, nil)
	require.NoError(t, err)
	require.NoError(t, svc.RevokeRole(ctx, "user-1", role.ID))

	require.Len(t, events, 3)
	assert.Equal(t, rbac.ChangeRoleCreated, events[0].Type)
	assert.Equal(t, rbac.ChangeAssignmentAdded, events[1].Type)
	assert.Equal(t, rbac.ChangeAssignmentRemoved, events[2].Type)
	assert.Equal(t, "team-x", events[1].RoleName)
	assert.Equal(t, "user-1", events[1].IdentityID)
}

func TestNamespacePermissions_RoundTrip(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.EnsureCatalog(ctx)
	require.NoError(t, err)

	err = svc.SetNamespacePermissions(ctx, "env-1", "tenantA", "ns1", "viewer", []string{"consume", "produce"})
	require.NoError(t, err)

	perms, err := svc.NamespacePermissions(ctx, "env-1", "tenantA", "ns1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"viewer": {"consume", "produce"}}, perms)

	// Replacement, not accumulation.
	err = svc.SetNamespacePermissions(ctx, "env-1", "tenantA", "ns1", "viewer", []string{"consume"})
	require.NoError(t, err)
	perms, err = svc.NamespacePermissions(ctx, "env-1", "tenantA", "ns1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"viewer": {"consume"}}, perms)

	require.NoError(t, svc.RemoveNamespacePermissions(ctx, "env-1", "tenantA", "ns1", "viewer"))
	perms, err = svc.NamespacePermissions(ctx, "env-1", "tenantA", "ns1")
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestSetNamespacePermissions_SkipsUnknownActions(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.EnsureCatalog(ctx)
	require.NoError(t, err)

	err = svc.SetNamespacePermissions(ctx, "env-1", "tenantA", "ns1", "weird", []string{"consume", "fly"})
	require.NoError(t, err)

	perms, err := svc.NamespacePermissions(ctx, "env-1", "tenantA", "ns1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"weird": {"consume"}}, perms)
}

func TestEffectivePermissions(t *testing.T) {
	store := rbactest.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	store.AddIdentity("user-1", false)
	store.AddIdentity("admin-1", true)
	_, err := svc.EnsureCatalog(ctx)
	require.NoError(t, err)

	role, err := svc.CreateRole(ctx, "env-1", "reader", "")
	require.NoError(t, err)
	_, err = svc.GrantPermission(ctx, role.ID, rbac.ActionRead, rbac.LevelTopic, strPtr("tenantA/*"))
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, "user-1", role.ID, nil)
	require.NoError(t, err)

	perms, err := svc.EffectivePermissions(ctx, "user-1", "env-1")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, rbac.ActionRead, perms[0].Action)
	assert.Equal(t, "role:reader", perms[0].Source)

	// Global admins report the full catalog.
	adminPerms, err := svc.EffectivePermissions(ctx, "admin-1", "env-1")
	require.NoError(t, err)
	assert.Len(t, adminPerms, len(rbac.PermissionDefinitions))
	assert.Equal(t, "superuser", adminPerms[0].Source)
}

func TestParseAction_Invalid(t *testing.T) {
	_, err := rbac.ParseAction("fly")
	assert.ErrorIs(t, err, rbac.ErrInvalidArgument)

	_, err = rbac.ParseResourceLevel("galaxy")
	assert.ErrorIs(t, err, rbac.ErrInvalidArgument)

	a, err := rbac.ParseAction("produce")
	require.NoError(t, err)
	assert.Equal(t, rbac.ActionProduce, a)
}

func TestParseSyncMode(t *testing.T) {
	m, err := rbac.ParseSyncMode("read_from_pulsar")
	require.NoError(t, err)
	assert.Equal(t, rbac.SyncModeReadFromPulsar, m)

	_, err = rbac.ParseSyncMode("two_way")
	assert.ErrorIs(t, err, rbac.ErrInvalidArgument)
}
