// Package models defines the OpenAI chat-completions wire types accepted from
// and returned to clients. Field names must match the public OpenAI schema for
// drop-in compatibility.
package models

import (
	"encoding/json"
	"errors"
)

// ChatCompletionRequest is the inbound OpenAI-shaped request
type ChatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	Stream        *bool          `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`

	// Tool calling
	Tools      []Tool          `json:"tools,omitempty"`
	ToolChoice json.RawMessage `json:"tool_choice,omitempty"`

	// Generation parameters are accepted for schema compatibility but the
	// vendor protocol has no equivalents, so they are not forwarded.
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int64   `json:"max_tokens,omitempty"`
	User        *string  `json:"user,omitempty"`
}

// Validate validates the request
func (r *ChatCompletionRequest) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}
	if len(r.Messages) == 0 {
		return errors.New("messages are required")
	}
	return nil
}

// IsStreaming returns whether streaming is enabled
func (r *ChatCompletionRequest) IsStreaming() bool {
	return r.Stream != nil && *r.Stream
}

// StreamOptions represents streaming configuration
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// Message represents a message in the conversation
type Message struct {
	Role    string         `json:"role,omitempty"`
	Content MessageContent `json:"content,omitzero"`
	Name    *string        `json:"name,omitempty"`

	// Tool call related
	ToolCallID *string    `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// MessageContent represents message content (can be string or array of parts)
type MessageContent struct {
	Content         *string              `json:"content,omitempty"`
	MultipleContent []MessageContentPart `json:"multiple_content,omitempty"`
}

// IsEmpty returns whether the content is empty
func (c MessageContent) IsEmpty() bool {
	return c.Content == nil && len(c.MultipleContent) == 0
}

// GetText flattens the content to plain text. Multimodal array content is
// reduced to its concatenated text segments before entering the protocol core.
func (c MessageContent) GetText() string {
	if c.Content != nil {
		return *c.Content
	}
	var text string
	for _, part := range c.MultipleContent {
		if part.Type == "text" && part.Text != nil {
			text += *part.Text
		}
	}
	return text
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if len(c.MultipleContent) > 0 {
		if len(c.MultipleContent) == 1 && c.MultipleContent[0].Type == "text" && c.MultipleContent[0].Text != nil {
			return json.Marshal(c.MultipleContent[0].Text)
		}
		return json.Marshal(c.MultipleContent)
	}
	return json.Marshal(c.Content)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	// Try string first
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		c.Content = &str
		return nil
	}

	// Try array of parts
	var parts []MessageContentPart
	if err := json.Unmarshal(data, &parts); err == nil {
		c.MultipleContent = parts
		return nil
	}

	return errors.New("invalid content type: expected string or []MessageContentPart")
}

// MessageContentPart represents a part of message content
type MessageContentPart struct {
	Type string  `json:"type"`
	Text *string `json:"text,omitempty"`
}

// Tool represents a function tool definition
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function represents a function definition
type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// FunctionCall represents a function call
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall represents a tool call in the response
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
	Index    int          `json:"index"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ChatCompletion is the non-streaming response returned to the client
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice represents a choice in a non-streaming response
type Choice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	FinishReason *string  `json:"finish_reason,omitempty"`
}

// ChatCompletionChunk is one streaming SSE event returned to the client
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChunkChoice represents a choice in a streaming chunk
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Delta represents the incremental content in a streaming chunk
type Delta struct {
	Role      string     `json:"role,omitempty"`
	Content   *string    `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ErrorDetail represents error details in the OpenAI error shape
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorResponse is the OpenAI-shaped error body
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// Finish reasons for completion turns
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
)

// Model is one entry of the /v1/models listing
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the /v1/models response
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
