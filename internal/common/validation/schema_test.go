package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const submitSchema = `{
  "type": "object",
  "required": ["jobId", "recipientKeys", "eventType"],
  "properties": {
    "jobId": {"type": "string", "minLength": 1},
    "recipientKeys": {"type": "array", "items": {"type": "string"}},
    "eventType": {"type": "string", "enum": ["assigned", "rescheduled"]}
  }
}`

func TestSchema_ValidateInput(t *testing.T) {
	schema, err := CompileString(submitSchema)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		res := schema.ValidateInput(map[string]interface{}{
			"jobId":         "J1",
			"recipientKeys": []interface{}{"u1", "s1"},
			"eventType":     "assigned",
		})
		assert.True(t, res.Valid)
		assert.Empty(t, res.Errors)
	})

	t.Run("missing and wrong fields", func(t *testing.T) {
		res := schema.ValidateInput(map[string]interface{}{
			"jobId":     "",
			"eventType": "exploded",
		})
		assert.False(t, res.Valid)
		assert.True(t, res.HasErrors("jobId"))
		assert.True(t, res.HasErrors("eventType"))
		assert.True(t, res.HasErrors("(root)"), "missing recipientKeys is reported on the root")
		assert.Len(t, res.GetErrorMessages(), len(res.Errors))
	})
}

func TestCompile(t *testing.T) {
	_, err := Compile(nil)
	assert.Error(t, err)

	s, err := Compile(map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"jobId"},
	})
	require.NoError(t, err)
	assert.False(t, s.ValidateInput(map[string]interface{}{}).Valid)
}
