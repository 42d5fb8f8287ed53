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

// Package rbacsync reconciles namespace permissions between the
// console's role store and the broker's native authorization data.
package rbacsync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pulsarconsole/pulsarconsole/internal/pulsar"
	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
)

// Direction of one sync pass.
type Direction string

const (
	DirectionConsoleToPulsar Direction = "console_to_pulsar"
	DirectionPulsarToConsole Direction = "pulsar_to_console"
)

// ParseDirection validates a direction string from an API boundary.
// Empty is accepted and means "default from the environment's sync
// mode".
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case "", DirectionConsoleToPulsar, DirectionPulsarToConsole:
		return d, nil
	default:
		return "", fmt.Errorf("%w: unknown sync direction %q", rbac.ErrInvalidArgument, s)
	}
}

// Change operations.
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpUpdate = "update"
)

// ActionSets holds both sides' action lists for a role that exists on
// both sides with differing sets.
type ActionSets struct {
	Console []string `json:"console"`
	Pulsar  []string `json:"pulsar"`
}

// Diff classifies every role on a namespace into exactly one bucket.
type Diff struct {
	OnlyInConsole map[string][]string   `json:"only_in_console"`
	OnlyInPulsar  map[string][]string   `json:"only_in_pulsar"`
	Different     map[string]ActionSets `json:"different"`
	Same          map[string][]string   `json:"same"`
	TotalConsole  int                   `json:"total_console"`
	TotalPulsar   int                   `json:"total_pulsar"`
}

// Change is one reconciliation step. Source names the side whose data
// is authoritative for this change.
type Change struct {
	Op           string   `json:"action"`
	ResourceType string   `json:"resource_type"`
	ResourceID   string   `json:"resource_id"`
	Role         string   `json:"role"`
	Actions      []string `json:"permissions"`
	Source       string   `json:"source"`
}

// Preview lists the changes a sync pass would make.
type Preview struct {
	Direction Direction `json:"direction"`
	Changes   []Change  `json:"changes"`
	Warnings  []string  `json:"warnings"`
	Errors    []string  `json:"errors"`
}

// HasChanges reports whether the pass would do anything.
func (p *Preview) HasChanges() bool { return len(p.Changes) > 0 }

// CanProceed reports whether the pass may be applied.
func (p *Preview) CanProceed() bool { return len(p.Errors) == 0 }

// Result reports one namespace's sync outcome. Changes apply
// independently; Success is true only when nothing failed.
type Result struct {
	Success        bool     `json:"success"`
	ChangesApplied int      `json:"changes_applied"`
	ChangesFailed  int      `json:"changes_failed"`
	Details        []string `json:"details"`
	Errors         []string `json:"errors"`
}

// Engine runs diff, preview and sync for any environment. Sync passes
// are serialized per environment: a tenant-wide sync and a manual
// namespace sync on the same environment never interleave.
type Engine struct {
	rbac   *rbac.Service
	store  pulsar.PermissionStore
	envs   rbac.EnvironmentRepository
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	applied metric.Int64Counter
	failed  metric.Int64Counter
}

// NewEngine creates the sync engine.
func NewEngine(svc *rbac.Service, store pulsar.PermissionStore, envs rbac.EnvironmentRepository, logger *slog.Logger, meter metric.Meter) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	applied, err := meter.Int64Counter("rbacsync.changes.applied",
		metric.WithDescription("Sync changes applied successfully"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	failed, err := meter.Int64Counter("rbacsync.changes.failed",
		metric.WithDescription("Sync changes that failed to apply"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	return &Engine{
		rbac:    svc,
		store:   store,
		envs:    envs,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
		applied: applied,
		failed:  failed,
	}, nil
}

func (e *Engine) envLock(environmentID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[environmentID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[environmentID] = l
	}
	return l
}

// GetDiff compares console and broker permissions for one namespace.
func (e *Engine) GetDiff(ctx context.Context, environmentID, tenant, namespace string) (*Diff, error) {
	consolePerms, err := e.rbac.NamespacePermissions(ctx, environmentID, tenant, namespace)
	if err != nil {
		return nil, err
	}
	pulsarPerms, err := e.store.GetNamespacePermissions(ctx, tenant, namespace)
	if err != nil {
		return nil, err
	}

	diff := &Diff{
		OnlyInConsole: map[string][]string{},
		OnlyInPulsar:  map[string][]string{},
		Different:     map[string]ActionSets{},
		Same:          map[string][]string{},
		TotalConsole:  len(consolePerms),
		TotalPulsar:   len(pulsarPerms),
	}

	for role, actions := range consolePerms {
		pulsarActions, ok := pulsarPerms[role]
		switch {
		case !ok:
			diff.OnlyInConsole[role] = actions
		case !sameActionSet(actions, pulsarActions):
			diff.Different[role] = ActionSets{Console: actions, Pulsar: pulsarActions}
		default:
			diff.Same[role] = actions
		}
	}
	for role, actions := range pulsarPerms {
		if _, ok := consolePerms[role]; !ok {
			diff.OnlyInPulsar[role] = actions
		}
	}
	return diff, nil
}

// PreviewSync builds the ordered change list for a sync pass. An empty
// direction defaults from the environment's sync mode; console_only
// environments cannot sync.
func (e *Engine) PreviewSync(ctx context.Context, environmentID, tenant, namespace string, direction Direction) (*Preview, error) {
	if _, err := ParseDirection(string(direction)); err != nil {
		return nil, err
	}
	if direction == "" {
		env, err := e.envs.GetByID(ctx, environmentID)
		if err != nil {
			return nil, err
		}
		switch env.SyncMode {
		case rbac.SyncModeSyncToPulsar:
			direction = DirectionConsoleToPulsar
		case rbac.SyncModeReadFromPulsar:
			direction = DirectionPulsarToConsole
		default:
			return &Preview{
				Direction: DirectionConsoleToPulsar,
				Errors:    []string{"RBAC sync is not enabled for this environment"},
			}, nil
		}
	}

	diff, err := e.GetDiff(ctx, environmentID, tenant, namespace)
	if err != nil {
		return nil, err
	}

	resourceID := tenant + "/" + namespace
	preview := &Preview{Direction: direction}

	if direction == DirectionConsoleToPulsar {
		for _, role := range sortedKeys(diff.OnlyInConsole) {
			preview.Changes = append(preview.Changes, Change{
				Op: OpAdd, ResourceType: "namespace", ResourceID: resourceID,
				Role: role, Actions: diff.OnlyInConsole[role], Source: "console",
			})
		}
		for _, role := range sortedKeys(diff.OnlyInPulsar) {
			preview.Changes = append(preview.Changes, Change{
				Op: OpRemove, ResourceType: "namespace", ResourceID: resourceID,
				Role: role, Actions: diff.OnlyInPulsar[role], Source: "pulsar",
			})
			preview.Warnings = append(preview.Warnings,
				fmt.Sprintf("Role '%s' exists only in Pulsar and will be removed", role))
		}
		for _, role := range sortedKeys(diff.Different) {
			preview.Changes = append(preview.Changes, Change{
				Op: OpUpdate, ResourceType: "namespace", ResourceID: resourceID,
				Role: role, Actions: diff.Different[role].Console, Source: "console",
			})
		}
	} else {
		for _, role := range sortedKeys(diff.OnlyInPulsar) {
			preview.Changes = append(preview.Changes, Change{
				Op: OpAdd, ResourceType: "namespace", ResourceID: resourceID,
				Role: role, Actions: diff.OnlyInPulsar[role], Source: "pulsar",
			})
		}
		for _, role := range sortedKeys(diff.OnlyInConsole) {
			preview.Changes = append(preview.Changes, Change{
				Op: OpRemove, ResourceType: "namespace", ResourceID: resourceID,
				Role: role, Actions: diff.OnlyInConsole[role], Source: "console",
			})
			preview.Warnings = append(preview.Warnings,
				fmt.Sprintf("Role '%s' exists only in Console and will be removed", role))
		}
		for _, role := range sortedKeys(diff.Different) {
			preview.Changes = append(preview.Changes, Change{
				Op: OpUpdate, ResourceType: "namespace", ResourceID: resourceID,
				Role: role, Actions: diff.Different[role].Pulsar, Source: "pulsar",
			})
		}
	}
	return preview, nil
}

// SyncNamespace reconciles one namespace. Each change applies
// independently: one failure does not abort the rest.
func (e *Engine) SyncNamespace(ctx context.Context, environmentID, tenant, namespace string, direction Direction, dryRun bool) (*Result, error) {
	lock := e.envLock(environmentID)
	lock.Lock()
	defer lock.Unlock()
	return e.syncNamespaceLocked(ctx, environmentID, tenant, namespace, direction, dryRun)
}

func (e *Engine) syncNamespaceLocked(ctx context.Context, environmentID, tenant, namespace string, direction Direction, dryRun bool) (*Result, error) {
	preview, err := e.PreviewSync(ctx, environmentID, tenant, namespace, direction)
	if err != nil {
		return nil, err
	}

	if !preview.CanProceed() {
		return &Result{Success: false, Errors: preview.Errors}, nil
	}
	if dryRun {
		return &Result{
			Success: true,
			Details: []string{fmt.Sprintf("Dry run: %d changes would be made", len(preview.Changes))},
		}, nil
	}
	if !preview.HasChanges() {
		return &Result{Success: true, Details: []string{"No changes needed"}}, nil
	}

	result := &Result{}
	attrs := metric.WithAttributes(
		attribute.String("environment_id", environmentID),
		attribute.String("direction", string(preview.Direction)),
	)

	for _, change := range preview.Changes {
		var applyErr error
		if preview.Direction == DirectionConsoleToPulsar {
			applyErr = e.applyToPulsar(ctx, tenant, namespace, change)
		} else {
			applyErr = e.applyToConsole(ctx, environmentID, tenant, namespace, change)
		}

		if applyErr != nil {
			result.ChangesFailed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("Failed to %s %s: %v", change.Op, change.Role, applyErr))
			e.failed.Add(ctx, 1, attrs)
			e.logger.ErrorContext(ctx, "sync change failed",
				slog.String("op", change.Op),
				slog.String("role", change.Role),
				slog.String("resource", change.ResourceID),
				slog.String("error", applyErr.Error()))
			continue
		}

		result.ChangesApplied++
		result.Details = append(result.Details,
			fmt.Sprintf("%s %s: %v", capitalize(change.Op), change.Role, change.Actions))
		e.applied.Add(ctx, 1, attrs)
	}

	result.Success = result.ChangesFailed == 0
	return result, nil
}

func (e *Engine) applyToPulsar(ctx context.Context, tenant, namespace string, change Change) error {
	switch change.Op {
	case OpAdd, OpUpdate:
		return e.store.GrantNamespacePermission(ctx, tenant, namespace, change.Role, change.Actions)
	case OpRemove:
		return e.store.RevokeNamespacePermission(ctx, tenant, namespace, change.Role)
	}
	return fmt.Errorf("%w: unknown change op %q", rbac.ErrInvalidArgument, change.Op)
}

func (e *Engine) applyToConsole(ctx context.Context, environmentID, tenant, namespace string, change Change) error {
	switch change.Op {
	case OpAdd, OpUpdate:
		return e.rbac.SetNamespacePermissions(ctx, environmentID, tenant, namespace, change.Role, change.Actions)
	case OpRemove:
		return e.rbac.RemoveNamespacePermissions(ctx, environmentID, tenant, namespace, change.Role)
	}
	return fmt.Errorf("%w: unknown change op %q", rbac.ErrInvalidArgument, change.Op)
}

// SyncAllNamespaces reconciles every namespace of a tenant. A failed
// namespace enumeration yields a single "_error" entry; a per-namespace
// failure becomes that namespace's failed result. The pass is
// cancellable between namespaces.
func (e *Engine) SyncAllNamespaces(ctx context.Context, environmentID, tenant string, direction Direction, dryRun bool) map[string]*Result {
	lock := e.envLock(environmentID)
	lock.Lock()
	defer lock.Unlock()

	results := make(map[string]*Result)

	namespaces, err := e.store.ListNamespaces(ctx, tenant)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to enumerate namespaces for sync",
			slog.String("tenant", tenant),
			slog.String("error", err.Error()))
		results["_error"] = &Result{
			Success: false,
			Errors:  []string{fmt.Sprintf("Failed to get namespaces: %v", err)},
		}
		return results
	}

	for _, full := range namespaces {
		if ctx.Err() != nil {
			return results
		}

		namespace := full
		if i := strings.LastIndex(full, "/"); i >= 0 {
			namespace = full[i+1:]
		}

		result, err := e.syncNamespaceLocked(ctx, environmentID, tenant, namespace, direction, dryRun)
		if err != nil {
			result = &Result{Success: false, Errors: []string{err.Error()}}
		}
		results[namespace] = result
	}
	return results
}

func sameActionSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	for _, y := range b {
		if !set[y] {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
