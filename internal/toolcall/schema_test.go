package toolcall

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qwen-bridge/internal/models"
)

func toolDef(name string, params string) models.Tool {
	return models.Tool{
		Type: "function",
		Function: models.Function{
			Name:        name,
			Description: "does " + name,
			Parameters:  []byte(params),
		},
	}
}

func TestTranscodeSchema_EmptyInput(t *testing.T) {
	assert.Equal(t, "<tools>\n</tools>", TranscodeSchema(nil))
}

func TestTranscodeSchema_SingleTool(t *testing.T) {
	tool := toolDef("get_weather", `{"properties":{"city":{"type":"string","description":"city name"},"days":{"type":"integer"}},"required":["city"]}`)

	schema := TranscodeSchema([]models.Tool{tool})

	assert.True(t, strings.HasPrefix(schema, "<tools>"))
	assert.True(t, strings.HasSuffix(schema, "</tools>"))
	assert.Contains(t, schema, "## get_weather")
	assert.Contains(t, schema, "Description: does get_weather")
	assert.Contains(t, schema, "- city: (required) string - city name")
	assert.Contains(t, schema, "- days: (optional) integer")

	// Usage example with type-appropriate placeholders
	assert.Contains(t, schema, "<get_weather>")
	assert.Contains(t, schema, "<city>example_value</city>")
	assert.Contains(t, schema, "<days>100</days>")
	assert.Contains(t, schema, "</get_weather>")
}

func TestTranscodeSchema_SkipsNamelessTool(t *testing.T) {
	tools := []models.Tool{
		{Type: "function", Function: models.Function{Name: ""}},
		toolDef("valid_tool", `{}`),
	}

	schema := TranscodeSchema(tools)

	assert.Contains(t, schema, "## valid_tool")
	assert.Equal(t, 1, strings.Count(schema, "## "))
}

func TestTranscodeSchema_UnparseableParameters(t *testing.T) {
	tool := toolDef("broken", `{not json`)

	schema := TranscodeSchema([]models.Tool{tool})

	// Tool survives without a parameters section
	assert.Contains(t, schema, "## broken")
	assert.NotContains(t, schema, "Parameters:")
}

func TestTranscodeSchema_ParameterOrderIsDeterministic(t *testing.T) {
	tool := toolDef("t", `{"properties":{"zeta":{"type":"string"},"alpha":{"type":"string"}}}`)

	schema := TranscodeSchema([]models.Tool{tool})
	assert.Less(t, strings.Index(schema, "alpha"), strings.Index(schema, "zeta"))
}

func TestSystemPromptAddition_ContainsSchemaAndRules(t *testing.T) {
	addition := SystemPromptAddition([]models.Tool{toolDef("get_weather", `{}`)})

	assert.Contains(t, addition, "<tools>")
	assert.Contains(t, addition, UsageInstructions)
	assert.Less(t, strings.Index(addition, "</tools>"), strings.Index(addition, "Tool Use Rules"))
}

func TestToolNames(t *testing.T) {
	tools := []models.Tool{
		toolDef("a", `{}`),
		{Type: "function", Function: models.Function{Name: ""}},
		toolDef("b", `{}`),
	}

	names := ToolNames(tools)
	require.Equal(t, []string{"a", "b"}, names)
}
