package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageContent_UnmarshalJSON_String(t *testing.T) {
	jsonStr := `"Hello, world!"`
	var content MessageContent
	err := json.Unmarshal([]byte(jsonStr), &content)

	require.NoError(t, err)
	require.NotNil(t, content.Content)
	assert.Equal(t, "Hello, world!", *content.Content)
	assert.Empty(t, content.MultipleContent)
}

func TestMessageContent_UnmarshalJSON_Array(t *testing.T) {
	jsonStr := `[{"type":"text","text":"Hello"},{"type":"text","text":" world"}]`
	var content MessageContent
	err := json.Unmarshal([]byte(jsonStr), &content)

	require.NoError(t, err)
	assert.Nil(t, content.Content)
	require.Len(t, content.MultipleContent, 2)
	assert.Equal(t, "text", content.MultipleContent[0].Type)
	assert.Equal(t, "Hello", *content.MultipleContent[0].Text)
}

func TestMessageContent_UnmarshalJSON_Invalid(t *testing.T) {
	var content MessageContent
	err := json.Unmarshal([]byte(`42`), &content)
	assert.Error(t, err)
}

func TestMessageContent_MarshalJSON_SingleTextPartAsString(t *testing.T) {
	text := "Hello"
	content := MessageContent{
		MultipleContent: []MessageContentPart{{Type: "text", Text: &text}},
	}
	data, err := json.Marshal(content)

	require.NoError(t, err)
	assert.Equal(t, `"Hello"`, string(data))
}

func TestMessageContent_GetText(t *testing.T) {
	text := "Hello"
	content := MessageContent{Content: &text}
	assert.Equal(t, "Hello", content.GetText())

	text1 := "Hello "
	text2 := "World"
	content2 := MessageContent{
		MultipleContent: []MessageContentPart{
			{Type: "text", Text: &text1},
			{Type: "text", Text: &text2},
		},
	}
	assert.Equal(t, "Hello World", content2.GetText())

	assert.Equal(t, "", MessageContent{}.GetText())
}

func TestChatCompletionRequest_Validate(t *testing.T) {
	text := "hi"
	valid := ChatCompletionRequest{
		Model:    "qwen3-max",
		Messages: []Message{{Role: "user", Content: MessageContent{Content: &text}}},
	}
	assert.NoError(t, valid.Validate())

	noModel := valid
	noModel.Model = ""
	assert.Error(t, noModel.Validate())

	noMessages := valid
	noMessages.Messages = nil
	assert.Error(t, noMessages.Validate())
}

func TestChatCompletionRequest_IsStreaming(t *testing.T) {
	var req ChatCompletionRequest
	assert.False(t, req.IsStreaming())

	yes := true
	req.Stream = &yes
	assert.True(t, req.IsStreaming())

	no := false
	req.Stream = &no
	assert.False(t, req.IsStreaming())
}

func TestChatCompletionRequest_UnmarshalFullRequest(t *testing.T) {
	raw := `{
		"model": "qwen3-max",
		"stream": true,
		"messages": [
			{"role": "system", "content": "Be brief."},
			{"role": "user", "content": [{"type":"text","text":"Hello"}]}
		],
		"tools": [{"type": "function", "function": {"name": "get_weather", "parameters": {"type":"object"}}}],
		"temperature": 0.7
	}`

	var req ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	assert.True(t, req.IsStreaming())
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "Hello", req.Messages[1].Content.GetText())
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "get_weather", req.Tools[0].Function.Name)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.7, *req.Temperature, 0.001)
}

func TestChatCompletionChunk_UsageOnlyShape(t *testing.T) {
	chunk := ChatCompletionChunk{
		ID:      "chatcmpl-1",
		Object:  "chat.completion.chunk",
		Model:   "qwen3-max",
		Choices: []ChunkChoice{},
		Usage:   &Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
	}

	data, err := json.Marshal(chunk)
	require.NoError(t, err)

	// The usage chunk must carry an empty array, not null
	assert.Contains(t, string(data), `"choices":[]`)
	assert.Contains(t, string(data), `"total_tokens":3`)
}
