package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "version": "1.0.0",
  "activities": [
    {
      "id": "notification.engine.submit",
      "taskType": "submit-notification",
      "inputSchema": {"type": "object", "required": ["jobId"]},
      "errorCodes": ["NOTIFICATION_INVALID_EVENT"]
    }
  ]
}`), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)

	act, ok := reg.FindByTaskType("submit-notification")
	require.True(t, ok)
	assert.Equal(t, "notification.engine.submit", act.ID)
	assert.Equal(t, "object", act.InputSchema["type"])

	_, ok = reg.FindByTaskType("send-notification")
	assert.False(t, ok)
}

func TestLoadRegistry_Errors(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"activities": [`), 0o600))
	_, err = LoadRegistry(path)
	assert.Error(t, err)
}

func TestShippedRegistryDeclaresSubmitNotification(t *testing.T) {
	reg, err := LoadRegistry(filepath.Join("..", "..", "configs", "activity-registry.json"))
	require.NoError(t, err)

	act, ok := reg.FindByTaskType("submit-notification")
	require.True(t, ok)
	assert.Contains(t, act.ErrorCodes, "NOTIFICATION_DEDUP_UNAVAILABLE")
	assert.NotEmpty(t, act.InputSchema["required"])
	assert.NoError(t, reg.Validate(nil))
}

func TestValidate(t *testing.T) {
	valid := func() *ActivityRegistry {
		return &ActivityRegistry{Activities: []Activity{{
			ID:          "notification.engine.submit",
			DisplayName: "Submit Notification",
			Category:    "notification",
			TaskType:    "submit-notification",
			ErrorCodes:  []string{"NOTIFICATION_INVALID_EVENT"},
		}}}
	}
	known := map[string]bool{"NOTIFICATION_INVALID_EVENT": true}

	assert.NoError(t, valid().Validate(known))
	assert.NoError(t, valid().Validate(nil))

	tests := []struct {
		name    string
		mutate  func(r *ActivityRegistry)
		wantErr string
	}{
		{"empty", func(r *ActivityRegistry) { r.Activities = nil }, "no activities"},
		{"missing task type", func(r *ActivityRegistry) { r.Activities[0].TaskType = "" }, "TaskType"},
		{"duplicate id", func(r *ActivityRegistry) {
			dup := r.Activities[0]
			dup.TaskType = "other"
			r.Activities = append(r.Activities, dup)
		}, "duplicate activity ID"},
		{"duplicate task type", func(r *ActivityRegistry) {
			dup := r.Activities[0]
			dup.ID = "other"
			r.Activities = append(r.Activities, dup)
		}, "more than one activity"},
		{"unknown code", func(r *ActivityRegistry) {
			r.Activities[0].ErrorCodes = append(r.Activities[0].ErrorCodes, "SOMETHING_ELSE")
		}, "unknown error code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := r.Validate(known)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
