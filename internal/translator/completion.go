// Package translator converts complete vendor responses and vendor SSE
// streams into OpenAI-shaped output.
package translator

import (
	"time"

	"github.com/google/uuid"

	"qwen-bridge/internal/models"
	"qwen-bridge/internal/qwen"
	"qwen-bridge/internal/toolcall"
)

// Translation is the result of translating one non-streaming vendor response:
// the client-facing completion plus the parent id to write back to the
// session. ParentID comes from the response's parent-id field, never its
// message-id; only the former is valid as the next turn's chain pointer.
type Translation struct {
	Completion *models.ChatCompletion
	ParentID   string
}

// TranslateCompletion converts one complete vendor response into one OpenAI
// completion object.
func TranslateCompletion(resp *qwen.CompletionResponse, model string, extractor *toolcall.Extractor) *Translation {
	content := resp.Content()
	result := extractor.Extract(content)

	message := &models.Message{Role: "assistant"}
	finishReason := models.FinishReasonStop

	if result.HasToolCall {
		// Content is the empty string, never null, when there is no
		// preceding text
		text := result.TextBefore
		message.Content = models.MessageContent{Content: &text}
		message.ToolCalls = []models.ToolCall{
			{
				ID:   result.ToolCall.CallID,
				Type: "function",
				Function: models.FunctionCall{
					Name:      result.ToolCall.ToolName,
					Arguments: result.ToolCall.ArgumentsJSON,
				},
				Index: 0,
			},
		}
		finishReason = models.FinishReasonToolCalls
	} else {
		message.Content = models.MessageContent{Content: &content}
	}

	completion := &models.ChatCompletion{
		ID:      completionID(resp.MessageID),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []models.Choice{
			{
				Index:        0,
				Message:      message,
				FinishReason: &finishReason,
			},
		},
		Usage: resp.Usage.Canonical(),
	}

	return &Translation{
		Completion: completion,
		ParentID:   resp.ParentID,
	}
}

// completionID builds a synthetic OpenAI completion id from the vendor
// message id
func completionID(messageID string) string {
	if messageID == "" {
		messageID = uuid.NewString()
	}
	return "chatcmpl-" + messageID
}
