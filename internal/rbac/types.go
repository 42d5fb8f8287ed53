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

import "fmt"

// Action is a verb a permission can grant.
type Action string

const (
	ActionProduce   Action = "produce"
	ActionConsume   Action = "consume"
	ActionFunctions Action = "functions"
	ActionSources   Action = "sources"
	ActionSinks     Action = "sinks"
	ActionPackages  Action = "packages"
	ActionAdmin     Action = "admin"
	ActionRead      Action = "read"
	ActionWrite     Action = "write"
)

// ResourceLevel is the granularity at which a permission applies.
type ResourceLevel string

const (
	LevelCluster   ResourceLevel = "cluster"
	LevelTenant    ResourceLevel = "tenant"
	LevelNamespace ResourceLevel = "namespace"
	LevelTopic     ResourceLevel = "topic"
)

// SyncMode controls the default direction of RBAC synchronization
// for an environment.
type SyncMode string

const (
	SyncModeConsoleOnly    SyncMode = "console_only"
	SyncModeSyncToPulsar   SyncMode = "sync_to_pulsar"
	SyncModeReadFromPulsar SyncMode = "read_from_pulsar"
)

var actions = map[Action]bool{
	ActionProduce:   true,
	ActionConsume:   true,
	ActionFunctions: true,
	ActionSources:   true,
	ActionSinks:     true,
	ActionPackages:  true,
	ActionAdmin:     true,
	ActionRead:      true,
	ActionWrite:     true,
}

var levels = map[ResourceLevel]bool{
	LevelCluster:   true,
	LevelTenant:    true,
	LevelNamespace: true,
	LevelTopic:     true,
}

// ParseAction converts an action string from an API boundary into a typed
// Action. Unknown values return ErrInvalidArgument.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !actions[a] {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, s)
	}
	return a, nil
}

// ParseResourceLevel converts a resource-level string into a typed
// ResourceLevel. Unknown values return ErrInvalidArgument.
func ParseResourceLevel(s string) (ResourceLevel, error) {
	l := ResourceLevel(s)
	if !levels[l] {
		return "", fmt.Errorf("%w: unknown resource level %q", ErrInvalidArgument, s)
	}
	return l, nil
}

// ParseSyncMode converts a sync-mode string into a typed SyncMode.
func ParseSyncMode(s string) (SyncMode, error) {
	switch m := SyncMode(s); m {
	case SyncModeConsoleOnly, SyncModeSyncToPulsar, SyncModeReadFromPulsar:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown sync mode %q", ErrInvalidArgument, s)
	}
}
