// Package qwen implements the vendor side of the protocol: the message and
// payload shapes the Qwen chat API accepts, and the decoding of its responses
// and stream events into canonical forms.
package qwen

import (
	"encoding/json"
	"time"

	app_errors "qwen-bridge/internal/errors"
	"qwen-bridge/internal/models"

	"github.com/google/uuid"
)

// Protocol constants. The chat-type tag appears three times in every message;
// all copies are populated from ChatTypeText so they cannot diverge.
const (
	ChatTypeText      = "t2t"
	UserActionChat    = "chat"
	OutputSchemaPhase = "phase"
	ChatModeNormal    = "normal"
)

// FeatureConfig is the fixed per-message feature block. Both values are
// protocol constants, not tunables.
type FeatureConfig struct {
	ThinkingEnabled bool   `json:"thinking_enabled"`
	OutputSchema    string `json:"output_schema"`
}

// ExtraMeta nests the third copy of the chat-type tag.
type ExtraMeta struct {
	SubChatType string `json:"subChatType"`
}

// Extra wraps ExtraMeta one level deep, mirroring the vendor schema.
type Extra struct {
	Meta ExtraMeta `json:"meta"`
}

// Message is the vendor message object sent per turn. Every field is always
// serialized; the vendor rejects messages with any field absent.
type Message struct {
	FID         string        `json:"fid"`
	ParentID    *string       `json:"parentId"`
	ParentIDDup *string       `json:"parent_id"`
	ChildrenIDs []string      `json:"childrenIds"`
	Role        string        `json:"role"`
	Content     string        `json:"content"`
	UserAction  string        `json:"user_action"`
	Files       []any         `json:"files"`
	Timestamp   int64         `json:"timestamp"`
	Models      []string      `json:"models"`
	ChatType    string        `json:"chat_type"`
	SubChatType string        `json:"sub_chat_type"`
	FeatureCfg  FeatureConfig `json:"feature_config"`
	Extra       Extra         `json:"extra"`
}

// RequiredFields lists every field path the vendor requires, nested leaves
// included. A message missing any of them is rejected upstream with an opaque
// error, so validation checks the full set, not a subset.
var RequiredFields = []string{
	"fid",
	"parentId",
	"parent_id",
	"childrenIds",
	"role",
	"content",
	"user_action",
	"files",
	"timestamp",
	"models",
	"chat_type",
	"sub_chat_type",
	"feature_config",
	"feature_config.thinking_enabled",
	"feature_config.output_schema",
	"extra",
	"extra.meta",
	"extra.meta.subChatType",
}

// BuildMessage constructs a vendor message for one conversation turn.
// parentID is set verbatim; chain correctness is the caller's responsibility.
// The timestamp is Unix seconds - the vendor silently misbehaves on
// millisecond timestamps.
func BuildMessage(role, content string, parentID *string, model string) Message {
	return Message{
		FID:         uuid.NewString(),
		ParentID:    parentID,
		ParentIDDup: parentID,
		ChildrenIDs: []string{},
		Role:        role,
		Content:     content,
		UserAction:  UserActionChat,
		Files:       []any{},
		Timestamp:   time.Now().UnixMilli() / 1000,
		Models:      []string{model},
		ChatType:    ChatTypeText,
		SubChatType: ChatTypeText,
		FeatureCfg: FeatureConfig{
			ThinkingEnabled: false,
			OutputSchema:    OutputSchemaPhase,
		},
		Extra: Extra{Meta: ExtraMeta{SubChatType: ChatTypeText}},
	}
}

// Validate checks the serialized message against the full required field set.
// A failure indicates an internal bug: messages built by BuildMessage always
// pass.
func (m Message) Validate() error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return err
	}

	for _, field := range RequiredFields {
		if !fieldPresent(probe, field) {
			return &app_errors.MissingVendorFieldError{Field: field}
		}
	}

	if m.FID == "" {
		return &app_errors.MissingVendorFieldError{Field: "fid"}
	}
	if m.Role == "" {
		return &app_errors.MissingVendorFieldError{Field: "role"}
	}
	if len(m.Models) != 1 || m.Models[0] == "" {
		return &app_errors.MissingVendorFieldError{Field: "models"}
	}
	if m.ChatType != m.SubChatType || m.ChatType != m.Extra.Meta.SubChatType {
		return &app_errors.MissingVendorFieldError{Field: "sub_chat_type"}
	}
	return nil
}

// fieldPresent resolves a dotted path against the serialized message.
func fieldPresent(probe map[string]json.RawMessage, path string) bool {
	current := probe
	for {
		dot := -1
		for i := 0; i < len(path); i++ {
			if path[i] == '.' {
				dot = i
				break
			}
		}
		if dot == -1 {
			_, ok := current[path]
			return ok
		}

		raw, ok := current[path[:dot]]
		if !ok {
			return false
		}
		var next map[string]json.RawMessage
		if err := json.Unmarshal(raw, &next); err != nil {
			return false
		}
		current = next
		path = path[dot+1:]
	}
}

// NormalizeTurn flattens an OpenAI message into the plain-text role/content
// pair the vendor understands. Tool-result turns are folded into user turns:
// the vendor protocol has no native tool-result role.
func NormalizeTurn(msg models.Message) (role, content string) {
	role = msg.Role
	content = msg.Content.GetText()
	if role == "tool" {
		role = "user"
	}
	return role, content
}
