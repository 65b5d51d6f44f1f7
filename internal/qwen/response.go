package qwen

import (
	"qwen-bridge/internal/models"
)

// CompletionResponse is one complete (non-streaming) vendor response.
//
// ParentID and MessageID are distinct values: ParentID is the only valid
// chain pointer for the next turn, MessageID merely names this response.
// Confusing one for the other breaks conversation continuity.
type CompletionResponse struct {
	Success   bool             `json:"success"`
	ChatID    string           `json:"chat_id"`
	MessageID string           `json:"message_id"`
	ParentID  string           `json:"parent_id"`
	Choices   []ResponseChoice `json:"choices"`
	Usage     *RawUsage        `json:"usage,omitempty"`
}

// ResponseChoice wraps the assistant message of a vendor response
type ResponseChoice struct {
	Message ResponseMessage `json:"message"`
}

// ResponseMessage is the assistant turn as the vendor reports it
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Content returns the assistant content of the first choice
func (r *CompletionResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// RawUsage carries the vendor's usage numbers under whichever field names it
// used. It is resolved into one canonical models.Usage at the decode boundary;
// downstream code never touches the raw names again.
type RawUsage struct {
	InputTokens      *int64 `json:"input_tokens,omitempty"`
	OutputTokens     *int64 `json:"output_tokens,omitempty"`
	PromptTokens     *int64 `json:"prompt_tokens,omitempty"`
	CompletionTokens *int64 `json:"completion_tokens,omitempty"`
	TotalTokens      *int64 `json:"total_tokens,omitempty"`
}

// Canonical renames the vendor fields into the OpenAI usage shape. Numbers
// are renamed only, never unit-converted; the total is summed when absent.
func (u *RawUsage) Canonical() *models.Usage {
	if u == nil {
		return nil
	}

	usage := &models.Usage{}

	switch {
	case u.InputTokens != nil:
		usage.PromptTokens = *u.InputTokens
	case u.PromptTokens != nil:
		usage.PromptTokens = *u.PromptTokens
	}

	switch {
	case u.OutputTokens != nil:
		usage.CompletionTokens = *u.OutputTokens
	case u.CompletionTokens != nil:
		usage.CompletionTokens = *u.CompletionTokens
	}

	if u.TotalTokens != nil {
		usage.TotalTokens = *u.TotalTokens
	} else {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return usage
}
