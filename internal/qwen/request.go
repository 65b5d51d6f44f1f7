package qwen

import (
	"strings"
	"time"

	app_errors "qwen-bridge/internal/errors"
	"qwen-bridge/internal/models"
	"qwen-bridge/internal/toolcall"
)

// CompletionRequest is the payload sent to the vendor completion endpoint.
// The top-level parent_id mirrors the session value carried by the newest
// message; the vendor expects both copies.
type CompletionRequest struct {
	Stream            bool      `json:"stream"`
	IncrementalOutput bool      `json:"incremental_output"`
	ChatID            string    `json:"chat_id"`
	ChatMode          string    `json:"chat_mode"`
	Model             string    `json:"model"`
	ParentID          *string   `json:"parent_id"`
	Messages          []Message `json:"messages"`
	Timestamp         int64     `json:"timestamp"`
}

// Session is the conversation state the assembler needs: the vendor chat id
// and the parent-chain pointer. ParentID is nil only for the first turn.
type Session struct {
	ChatID   string
	ParentID *string
}

// AssembleRequest decides which turns to forward and produces the complete
// vendor payload.
//
// On the first turn of a conversation (nil parent id) all system content is
// merged into one unchained system message, with the tool schema appended
// when tools are supplied. On later turns system content is dropped entirely:
// the vendor retains it through its server-side context chain, and resending
// it is known to sometimes produce empty responses. In both cases exactly one
// message is built from the newest non-system turn.
func AssembleRequest(messages []models.Message, sess Session, tools []models.Tool, model string, stream bool) (*CompletionRequest, error) {
	if len(messages) == 0 {
		return nil, app_errors.ErrEmptyConversation
	}

	firstTurn := sess.ParentID == nil

	var vendorMessages []Message

	if firstTurn {
		if system := buildSystemContent(messages, tools); system != "" {
			// System messages are never chained
			vendorMessages = append(vendorMessages, BuildMessage("system", system, nil, model))
		}
	}

	latest, ok := latestNonSystemTurn(messages)
	if !ok {
		return nil, app_errors.ErrEmptyConversation
	}
	role, content := NormalizeTurn(latest)
	vendorMessages = append(vendorMessages, BuildMessage(role, content, sess.ParentID, model))

	for _, msg := range vendorMessages {
		if err := msg.Validate(); err != nil {
			return nil, err
		}
	}

	return &CompletionRequest{
		Stream:            stream,
		IncrementalOutput: stream,
		ChatID:            sess.ChatID,
		ChatMode:          ChatModeNormal,
		Model:             model,
		ParentID:          sess.ParentID,
		Messages:          vendorMessages,
		Timestamp:         time.Now().UnixMilli() / 1000,
	}, nil
}

// buildSystemContent concatenates all system turns with blank-line separators
// and appends the tool schema block when tools are present.
func buildSystemContent(messages []models.Message, tools []models.Tool) string {
	var parts []string
	for _, msg := range messages {
		if msg.Role != "system" {
			continue
		}
		if text := msg.Content.GetText(); text != "" {
			parts = append(parts, text)
		}
	}
	if len(tools) > 0 {
		parts = append(parts, toolcall.SystemPromptAddition(tools))
	}
	return strings.Join(parts, "\n\n")
}

// latestNonSystemTurn returns the last turn that is not system-role, normally
// the newest user message.
func latestNonSystemTurn(messages []models.Message) (models.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "system" {
			return messages[i], true
		}
	}
	return models.Message{}, false
}
