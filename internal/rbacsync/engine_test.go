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

package rbacsync_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
	"github.com/pulsarconsole/pulsarconsole/internal/rbac/rbactest"
	"github.com/pulsarconsole/pulsarconsole/internal/rbacsync"
)

// fakeBroker is an in-memory stand-in for the Pulsar admin API.
type fakeBroker struct {
	mu             sync.Mutex
	perms          map[string]map[string][]string // "tenant/ns" -> role -> actions
	namespaces     map[string][]string            // tenant -> full namespace paths
	allowedActions map[string]bool                // nil allows everything
	listErr        error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		perms:      make(map[string]map[string][]string),
		namespaces: make(map[string][]string),
	}
}

func (f *fakeBroker) addNamespace(tenant, namespace string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	full := tenant + "/" + namespace
	f.namespaces[tenant] = append(f.namespaces[tenant], full)
	if f.perms[full] == nil {
		f.perms[full] = make(map[string][]string)
	}
}

func (f *fakeBroker) setPerm(tenant, namespace, role string, actions []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	full := tenant + "/" + namespace
	if f.perms[full] == nil {
		f.perms[full] = make(map[string][]string)
	}
	f.perms[full][role] = actions
}

func (f *fakeBroker) GetNamespacePermissions(ctx context.Context, tenant, namespace string) (map[string][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]string)
	for role, actions := range f.perms[tenant+"/"+namespace] {
		out[role] = append([]string(nil), actions...)
	}
	return out, nil
}

func (f *fakeBroker) GrantNamespacePermission(ctx context.Context, tenant, namespace, role string, actions []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allowedActions != nil {
		for _, a := range actions {
			if !f.allowedActions[a] {
				return fmt.Errorf("broker rejected action %q", a)
			}
		}
	}
	full := tenant + "/" + namespace
	if f.perms[full] == nil {
		f.perms[full] = make(map[string][]string)
	}
	f.perms[full][role] = append([]string(nil), actions...)
	return nil
}

func (f *fakeBroker) RevokeNamespacePermission(ctx context.Context, tenant, namespace, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.perms[tenant+"/"+namespace], role)
	return nil
}

func (f *fakeBroker) ListNamespaces(ctx context.Context, tenant string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.namespaces[tenant]...), nil
}

type syncFixture struct {
	store  *rbactest.Store
	svc    *rbac.Service
	broker *fakeBroker
	engine *rbacsync.Engine
}

func newSyncFixture(t *testing.T, mode rbac.SyncMode) *syncFixture {
	t.Helper()
	store := rbactest.NewStore()
	catalog, err := rbac.NewCatalogCache(store.Permissions())
	require.NoError(t, err)
	svc := rbac.NewService(
		store.Permissions(), store.Roles(), store.Grants(), store.Assignments(),
		store.Identities(), store.Environments(), catalog, store,
	)

	store.AddEnvironment("env-1", true, mode)
	_, err = svc.EnsureCatalog(context.Background())
	require.NoError(t, err)

	broker := newFakeBroker()
	engine, err := rbacsync.NewEngine(svc, broker, store.Environments(), nil, otel.Meter("test"))
	require.NoError(t, err)

	return &syncFixture{store: store, svc: svc, broker: broker, engine: engine}
}

func (f *syncFixture) setConsolePerm(t *testing.T, tenant, namespace, role string, actions []string) {
	t.Helper()
	require.NoError(t, f.svc.SetNamespacePermissions(context.Background(), "env-1", tenant, namespace, role, actions))
}

func TestGetDiff_Buckets(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeSyncToPulsar)
	ctx := context.Background()

	f.setConsolePerm(t, "tenantA", "ns1", "viewer", []string{"read"})
	f.setConsolePerm(t, "tenantA", "ns1", "app", []string{"produce", "consume"})
	f.setConsolePerm(t, "tenantA", "ns1", "same-role", []string{"consume"})
	f.broker.setPerm("tenantA", "ns1", "app", []string{"produce"})
	f.broker.setPerm("tenantA", "ns1", "same-role", []string{"consume"})
	f.broker.setPerm("tenantA", "ns1", "legacy", []string{"consume"})

	diff, err := f.engine.GetDiff(ctx, "env-1", "tenantA", "ns1")
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{"viewer": {"read"}}, diff.OnlyInConsole)
	assert.Equal(t, map[string][]string{"legacy": {"consume"}}, diff.OnlyInPulsar)
	assert.Equal(t, map[string][]string{"same-role": {"consume"}}, diff.Same)
	require.Contains(t, diff.Different, "app")
	assert.ElementsMatch(t, []string{"produce", "consume"}, diff.Different["app"].Console)
	assert.Equal(t, []string{"produce"}, diff.Different["app"].Pulsar)
	assert.Equal(t, 3, diff.TotalConsole)
	assert.Equal(t, 3, diff.TotalPulsar)
}

func TestPreviewSync_ConsoleOnlyIsAnError(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeConsoleOnly)

	preview, err := f.engine.PreviewSync(context.Background(), "env-1", "tenantA", "ns1", "")
	require.NoError(t, err)
	assert.False(t, preview.CanProceed())
	assert.Contains(t, preview.Errors, "RBAC sync is not enabled for this environment")

	result, err := f.engine.SyncNamespace(context.Background(), "env-1", "tenantA", "ns1", "", false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, result.ChangesApplied)
}

func TestPreviewSync_DirectionDefaultsFromEnvironment(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeReadFromPulsar)

	preview, err := f.engine.PreviewSync(context.Background(), "env-1", "tenantA", "ns1", "")
	require.NoError(t, err)
	assert.Equal(t, rbacsync.DirectionPulsarToConsole, preview.Direction)
	assert.True(t, preview.CanProceed())
}

func TestParseDirection(t *testing.T) {
	d, err := rbacsync.ParseDirection("pulsar_to_console")
	require.NoError(t, err)
	assert.Equal(t, rbacsync.DirectionPulsarToConsole, d)

	// Empty means "default from the environment's sync mode".
	d, err = rbacsync.ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, rbacsync.Direction(""), d)

	_, err = rbacsync.ParseDirection("both_ways")
	assert.ErrorIs(t, err, rbac.ErrInvalidArgument)
}

func TestPreviewSync_UnknownDirectionRejected(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeSyncToPulsar)
	ctx := context.Background()

	f.setConsolePerm(t, "tenantA", "ns1", "viewer", []string{"read"})

	// A hyphenated typo must not fall through to the reverse branch,
	// which would remove console-only grants.
	_, err := f.engine.PreviewSync(ctx, "env-1", "tenantA", "ns1", "console-to-pulsar")
	require.ErrorIs(t, err, rbac.ErrInvalidArgument)

	result, err := f.engine.SyncNamespace(ctx, "env-1", "tenantA", "ns1", "console-to-pulsar", false)
	require.ErrorIs(t, err, rbac.ErrInvalidArgument)
	assert.Nil(t, result)

	perms, err := f.svc.NamespacePermissions(ctx, "env-1", "tenantA", "ns1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"viewer": {"read"}}, perms)
}

func TestPreviewSync_ForwardChanges(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeSyncToPulsar)

	f.setConsolePerm(t, "tenantA", "ns1", "viewer", []string{"read"})
	f.broker.setPerm("tenantA", "ns1", "legacy", []string{"consume"})

	preview, err := f.engine.PreviewSync(context.Background(), "env-1", "tenantA", "ns1", "")
	require.NoError(t, err)
	require.Len(t, preview.Changes, 2)

	assert.Equal(t, rbacsync.OpAdd, preview.Changes[0].Op)
	assert.Equal(t, "viewer", preview.Changes[0].Role)
	assert.Equal(t, "console", preview.Changes[0].Source)

	assert.Equal(t, rbacsync.OpRemove, preview.Changes[1].Op)
	assert.Equal(t, "legacy", preview.Changes[1].Role)
	assert.Contains(t, preview.Warnings, "Role 'legacy' exists only in Pulsar and will be removed")
}

func TestSyncNamespace_ForwardRoundTrip(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeSyncToPulsar)
	ctx := context.Background()

	f.setConsolePerm(t, "tenantA", "ns1", "viewer", []string{"read"})

	diff, err := f.engine.GetDiff(ctx, "env-1", "tenantA", "ns1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"viewer": {"read"}}, diff.OnlyInConsole)

	result, err := f.engine.SyncNamespace(ctx, "env-1", "tenantA", "ns1", "", false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ChangesApplied)
	assert.Zero(t, result.ChangesFailed)

	diff, err = f.engine.GetDiff(ctx, "env-1", "tenantA", "ns1")
	require.NoError(t, err)
	assert.Empty(t, diff.OnlyInConsole)
	assert.Empty(t, diff.OnlyInPulsar)
	assert.Empty(t, diff.Different)
	assert.Equal(t, map[string][]string{"viewer": {"read"}}, diff.Same)
}

func TestSyncNamespace_ReverseCreatesConsoleRole(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeReadFromPulsar)
	ctx := context.Background()

	f.broker.setPerm("tenantA", "ns1", "app-service", []string{"produce", "consume"})
	f.setConsolePerm(t, "tenantA", "ns1", "stale", []string{"read"})

	result, err := f.engine.SyncNamespace(ctx, "env-1", "tenantA", "ns1", "", false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ChangesApplied)

	perms, err := f.svc.NamespacePermissions(ctx, "env-1", "tenantA", "ns1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"app-service": {"consume", "produce"}}, perms)

	// The imported role exists as a proper console role.
	role, err := f.svc.GetRoleByName(ctx, "env-1", "app-service")
	require.NoError(t, err)
	assert.False(t, role.IsSystem)
}

func TestSyncNamespace_DryRun(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeSyncToPulsar)
	ctx := context.Background()

	f.setConsolePerm(t, "tenantA", "ns1", "viewer", []string{"read"})

	result, err := f.engine.SyncNamespace(ctx, "env-1", "tenantA", "ns1", "", true)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.ChangesApplied)
	assert.Equal(t, []string{"Dry run: 1 changes would be made"}, result.Details)

	// Nothing was written to the broker.
	perms, err := f.broker.GetNamespacePermissions(ctx, "tenantA", "ns1")
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestSyncNamespace_NoChanges(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeSyncToPulsar)

	result, err := f.engine.SyncNamespace(context.Background(), "env-1", "tenantA", "ns1", "", false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"No changes needed"}, result.Details)
}

func TestSyncNamespace_PartialFailure(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeSyncToPulsar)
	ctx := context.Background()

	f.setConsolePerm(t, "tenantA", "ns1", "good-role", []string{"consume"})
	f.setConsolePerm(t, "tenantA", "ns1", "bad-role", []string{"functions"})
	f.broker.allowedActions = map[string]bool{"produce": true, "consume": true}

	result, err := f.engine.SyncNamespace(ctx, "env-1", "tenantA", "ns1", "", false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.ChangesApplied)
	assert.Equal(t, 1, result.ChangesFailed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "bad-role")

	// The good role still landed on the broker.
	perms, err := f.broker.GetNamespacePermissions(ctx, "tenantA", "ns1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"good-role": {"consume"}}, perms)
}

func TestSyncAllNamespaces(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeSyncToPulsar)
	ctx := context.Background()

	f.broker.addNamespace("tenantA", "ns1")
	f.broker.addNamespace("tenantA", "ns2")
	f.setConsolePerm(t, "tenantA", "ns1", "viewer", []string{"read"})
	f.setConsolePerm(t, "tenantA", "ns2", "bad-role", []string{"functions"})
	f.broker.allowedActions = map[string]bool{"read": true}

	results := f.engine.SyncAllNamespaces(ctx, "env-1", "tenantA", "", false)
	require.Len(t, results, 2)

	assert.True(t, results["ns1"].Success)
	assert.Equal(t, 1, results["ns1"].ChangesApplied)

	assert.False(t, results["ns2"].Success)
	assert.GreaterOrEqual(t, results["ns2"].ChangesFailed, 1)
}

func TestSyncAllNamespaces_EnumerationFailure(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeSyncToPulsar)
	f.broker.listErr = errors.New("connection refused")

	results := f.engine.SyncAllNamespaces(context.Background(), "env-1", "tenantA", "", false)
	require.Len(t, results, 1)
	require.Contains(t, results, "_error")
	assert.False(t, results["_error"].Success)
	assert.Contains(t, results["_error"].Errors[0], "Failed to get namespaces")
}

func TestSyncAllNamespaces_CancelledBetweenNamespaces(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeSyncToPulsar)
	f.broker.addNamespace("tenantA", "ns1")
	f.broker.addNamespace("tenantA", "ns2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := f.engine.SyncAllNamespaces(ctx, "env-1", "tenantA", "", false)
	assert.Empty(t, results)
}

func TestScheduler_RunOnce(t *testing.T) {
	f := newSyncFixture(t, rbac.SyncModeSyncToPulsar)
	ctx := context.Background()

	f.broker.addNamespace("tenantA", "ns1")
	f.setConsolePerm(t, "tenantA", "ns1", "viewer", []string{"read"})

	tenants := staticTenants{"tenantA"}
	scheduler := rbacsync.NewScheduler(f.engine, f.store.Environments(), tenants, nil)
	scheduler.RunOnce(ctx)

	perms, err := f.broker.GetNamespacePermissions(ctx, "tenantA", "ns1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"viewer": {"read"}}, perms)
}

type staticTenants []string

func (s staticTenants) ListTenants(ctx context.Context) ([]string, error) {
	return []string(s), nil
}
