package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
)

func TestAudit_IsSecret(t *testing.T) {
	tests := []struct {
		key      string
		isSecret bool
	}{
		{"password", true},
		{"token", true},
		{"secret", true},
		{"key", true},
		{"authorization", true},
		{"identity_id", false},
		{"environment_id", false},
		{"role", false},
		{"status", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isSecret(tt.key); got != tt.isSecret {
				t.Errorf("isSecret(%q) = %v, want %v", tt.key, got, tt.isSecret)
			}
		})
	}
}

type captureLogger struct {
	events []Event
}

func (c *captureLogger) Log(ctx context.Context, event Event) {
	c.events = append(c.events, event)
}

func TestHook_MapsChangeEvents(t *testing.T) {
	capture := &captureLogger{}
	hook := Hook(capture)
	ctx := context.Background()

	hook(ctx, rbac.ChangeEvent{
		Type:          rbac.ChangeAssignmentAdded,
		EnvironmentID: "env-1",
		RoleName:      "viewer",
		IdentityID:    "user-1",
		ActorID:       "admin-1",
	})
	hook(ctx, rbac.ChangeEvent{
		Type:          rbac.ChangeGrantAdded,
		EnvironmentID: "env-1",
		RoleName:      "viewer",
		Action:        rbac.ActionRead,
		ResourceLevel: rbac.LevelNamespace,
	})

	if len(capture.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(capture.events))
	}

	assert.Equal(t, TypeRoleAssigned, capture.events[0].Type)
	assert.Equal(t, "env-1", capture.events[0].EnvironmentID)
	assert.Equal(t, "admin-1", capture.events[0].ActorID)
	assert.Equal(t, "user-1", capture.events[0].Metadata["identity_id"])

	assert.Equal(t, TypeGrantAdded, capture.events[1].Type)
	assert.Equal(t, "read", capture.events[1].Metadata["action"])
	assert.Equal(t, "namespace", capture.events[1].Metadata["resource_level"])
}
