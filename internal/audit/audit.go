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

package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
)

// Event types
const (
	TypeRoleCreated      = "role_created"
	TypeRoleRenamed      = "role_renamed"
	TypeRoleDeleted      = "role_deleted"
	TypeGrantAdded       = "grant_added"
	TypeGrantRemoved     = "grant_removed"
	TypeRoleAssigned     = "role_assigned"
	TypeRoleRevoked      = "role_revoked"
	TypeCatalogSeeded    = "catalog_seeded"
	TypePermissionDenied = "permission_denied"
	TypeSyncCompleted    = "sync_completed"
)

// Event represents an auditable action
type Event struct {
	Type          string
	EnvironmentID string
	ActorID       string
	Resource      string
	Metadata      map[string]any
	Timestamp     time.Time
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	// Ensure timestamp is set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("environment_id", event.EnvironmentID),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}

	// Flatten metadata
	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			// Redact secrets
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	// Log at INFO level with "audit" component
	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	secrets := []string{"password", "secret", "token", "key", "authorization"}
	for _, s := range secrets {
		if key == s {
			return true
		}
	}
	return false
}

// changeEventTypes maps store change types to audit event types.
var changeEventTypes = map[string]string{
	rbac.ChangeRoleCreated:       TypeRoleCreated,
	rbac.ChangeRoleRenamed:       TypeRoleRenamed,
	rbac.ChangeRoleDeleted:       TypeRoleDeleted,
	rbac.ChangeGrantAdded:        TypeGrantAdded,
	rbac.ChangeGrantRemoved:      TypeGrantRemoved,
	rbac.ChangeAssignmentAdded:   TypeRoleAssigned,
	rbac.ChangeAssignmentRemoved: TypeRoleRevoked,
	rbac.ChangeCatalogSeeded:     TypeCatalogSeeded,
}

// Hook adapts an audit logger into an rbac post-commit hook.
func Hook(logger Logger) rbac.Hook {
	return func(ctx context.Context, ev rbac.ChangeEvent) {
		eventType, ok := changeEventTypes[ev.Type]
		if !ok {
			eventType = ev.Type
		}

		metadata := map[string]any{"role": ev.RoleName}
		if ev.IdentityID != "" {
			metadata["identity_id"] = ev.IdentityID
		}
		if ev.Action != "" {
			metadata["action"] = string(ev.Action)
			metadata["resource_level"] = string(ev.ResourceLevel)
		}

		resource := "role/" + ev.RoleName
		if ev.Pattern != nil {
			resource = *ev.Pattern
		}

		logger.Log(ctx, Event{
			Type:          eventType,
			EnvironmentID: ev.EnvironmentID,
			ActorID:       ev.ActorID,
			Resource:      resource,
			Metadata:      metadata,
		})
	}
}
