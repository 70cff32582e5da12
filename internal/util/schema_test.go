package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherArgs struct {
	Location string  `json:"location" description:"City name"`
	Days     int     `json:"days,omitempty"`
	Units    string  `json:"-"`
	Detail   *string `json:"detail,omitempty"`
}

func TestSchemaFromStruct(t *testing.T) {
	schema := SchemaFromStruct(weatherArgs{})

	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	location, ok := props["location"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", location["type"])
	assert.Equal(t, "City name", location["description"])

	days, ok := props["days"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "integer", days["type"])

	_, skipped := props["Units"]
	assert.False(t, skipped, "json:\"-\" fields must be skipped")

	assert.Equal(t, []string{"location"}, schema["required"])
}

func TestSchemaFromStructNonStruct(t *testing.T) {
	schema := SchemaFromStruct("not a struct")
	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["properties"])
}

func TestValidateArguments(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":  map[string]any{"type": "string"},
			"count": map[string]any{"type": "integer"},
			"ratio": map[string]any{"type": "number"},
			"flag":  map[string]any{"type": "boolean"},
		},
		"required": []string{"name"},
	}

	t.Run("valid", func(t *testing.T) {
		err := ValidateArguments(map[string]any{
			"name": "x", "count": float64(3), "ratio": 0.5, "flag": true,
		}, schema)
		assert.NoError(t, err)
	})

	t.Run("missing required", func(t *testing.T) {
		err := ValidateArguments(map[string]any{"count": 1}, schema)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "name", verr.Field)
	})

	t.Run("wrong type", func(t *testing.T) {
		err := ValidateArguments(map[string]any{"name": "x", "count": "three"}, schema)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "count", verr.Field)
	})

	t.Run("fractional value for integer", func(t *testing.T) {
		err := ValidateArguments(map[string]any{"name": "x", "count": 1.5}, schema)
		require.Error(t, err)
	})

	t.Run("extra fields pass through", func(t *testing.T) {
		err := ValidateArguments(map[string]any{"name": "x", "unknown": 42}, schema)
		assert.NoError(t, err)
	})

	t.Run("required as decoded JSON list", func(t *testing.T) {
		decoded := map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []any{"name"},
		}
		err := ValidateArguments(map[string]any{}, decoded)
		require.Error(t, err)
	})
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Hello, {{.name}}!", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada!", out)
}

func TestRenderTemplateMissingKey(t *testing.T) {
	_, err := RenderTemplate("Hello, {{.name}}!", map[string]any{})
	require.Error(t, err)
}

func TestRenderTemplatePlainTextFastPath(t *testing.T) {
	out, err := RenderTemplate("no placeholders here", nil)
	require.NoError(t, err)
	assert.Equal(t, "no placeholders here", out)
}

func TestRenderTemplateFuncs(t *testing.T) {
	out, err := RenderTemplate(`{{upper .word}} {{join ", " .items}}`, map[string]any{
		"word":  "loud",
		"items": []any{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "LOUD a, b", out)
}
