package toolcall

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_PlainText(t *testing.T) {
	e := NewExtractor([]string{"get_weather"})

	result := e.Extract("Just a normal answer with no tools.")

	assert.False(t, result.HasToolCall)
	assert.Nil(t, result.ToolCall)
	assert.Equal(t, "Just a normal answer with no tools.", result.TextBefore)
}

func TestExtract_KnownTool(t *testing.T) {
	e := NewExtractor([]string{"get_weather"})

	text := "Let me check.\n<get_weather>\n<city>Paris</city>\n<days>3</days>\n</get_weather>"
	result := e.Extract(text)

	require.True(t, result.HasToolCall)
	require.NotNil(t, result.ToolCall)
	assert.Equal(t, "get_weather", result.ToolCall.ToolName)
	assert.True(t, strings.HasPrefix(result.ToolCall.CallID, "call_"))
	assert.Equal(t, "Let me check.\n", result.TextBefore)

	var args map[string]string
	require.NoError(t, json.Unmarshal([]byte(result.ToolCall.ArgumentsJSON), &args))
	assert.Equal(t, map[string]string{"city": "Paris", "days": "3"}, args)
}

func TestExtract_NoParameters(t *testing.T) {
	e := NewExtractor([]string{"list_files"})

	result := e.Extract("<list_files></list_files>")

	require.True(t, result.HasToolCall)
	assert.Equal(t, "{}", result.ToolCall.ArgumentsJSON)
	assert.Equal(t, "", result.TextBefore)
}

func TestExtract_UnknownTagIsPlainText(t *testing.T) {
	e := NewExtractor([]string{"get_weather"})

	text := "Here is some markup: <b>bold</b> and <unknown_tool><x>1</x></unknown_tool>"
	result := e.Extract(text)

	assert.False(t, result.HasToolCall)
	assert.Equal(t, text, result.TextBefore)
}

func TestExtract_UnknownTagBeforeKnownTool(t *testing.T) {
	e := NewExtractor([]string{"get_weather"})

	text := "See <code>x</code> then <get_weather><city>Oslo</city></get_weather>"
	result := e.Extract(text)

	require.True(t, result.HasToolCall)
	assert.Equal(t, "get_weather", result.ToolCall.ToolName)
	assert.Equal(t, "See <code>x</code> then ", result.TextBefore)
}

func TestExtract_CaseSensitiveMatch(t *testing.T) {
	e := NewExtractor([]string{"get_weather"})

	result := e.Extract("<Get_Weather><city>Paris</city></Get_Weather>")

	assert.False(t, result.HasToolCall)
}

func TestExtract_UnclosedTagIsPlainText(t *testing.T) {
	e := NewExtractor([]string{"get_weather"})

	text := "Starting a call <get_weather><city>Paris</city>"
	result := e.Extract(text)

	assert.False(t, result.HasToolCall)
	assert.Equal(t, text, result.TextBefore)
}

func TestExtract_OnlyFirstToolCallExtracted(t *testing.T) {
	e := NewExtractor([]string{"tool_a", "tool_b"})

	text := "<tool_a><x>1</x></tool_a> and then <tool_b><y>2</y></tool_b>"
	result := e.Extract(text)

	require.True(t, result.HasToolCall)
	assert.Equal(t, "tool_a", result.ToolCall.ToolName)
}

func TestExtract_EmptyRegistry(t *testing.T) {
	e := NewExtractor(nil)

	text := "<get_weather><city>Paris</city></get_weather>"
	result := e.Extract(text)

	assert.False(t, result.HasToolCall)
	assert.Equal(t, text, result.TextBefore)
}

func TestExtract_DeterministicForSameInput(t *testing.T) {
	e := NewExtractor([]string{"get_weather"})
	text := "prefix <get_weather><city>Rome</city></get_weather> suffix"

	first := e.Extract(text)
	second := e.Extract(text)

	require.True(t, first.HasToolCall)
	require.True(t, second.HasToolCall)
	assert.Equal(t, first.ToolCall.ToolName, second.ToolCall.ToolName)
	assert.Equal(t, first.ToolCall.ArgumentsJSON, second.ToolCall.ArgumentsJSON)
	assert.Equal(t, first.TextBefore, second.TextBefore)
}
