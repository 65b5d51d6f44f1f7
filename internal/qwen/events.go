package qwen

import (
	"encoding/json"

	app_errors "qwen-bridge/internal/errors"
	"qwen-bridge/internal/models"
)

// EventKind tags one decoded vendor stream event
type EventKind int

const (
	// EventUnknown is a well-formed event of no interest to the translator
	EventUnknown EventKind = iota
	// EventCreated carries the conversation parent id; never forwarded
	EventCreated
	// EventContentDelta carries an assistant text fragment
	EventContentDelta
	// EventFinished is the payload-level terminal status, possibly with a
	// final text fragment attached
	EventFinished
	// EventUsageOnly carries usage numbers and nothing else
	EventUsageOnly
	// EventError is a vendor-reported mid-stream failure
	EventError
)

// StreamEvent is the tagged decoding of one vendor SSE data line. Each line
// is decoded exactly once at this boundary; downstream code switches on Kind
// instead of re-probing raw JSON fields.
type StreamEvent struct {
	Kind         EventKind
	ParentID     string
	ResponseID   string
	Content      string
	Usage        *models.Usage
	ErrorMessage string
}

// Vendor stream wire shapes
type rawStreamEvent struct {
	Created *rawCreated       `json:"response.created,omitempty"`
	Choices []rawStreamChoice `json:"choices,omitempty"`
	Usage   *RawUsage         `json:"usage,omitempty"`
	Error   *rawStreamError   `json:"error,omitempty"`
}

type rawCreated struct {
	ChatID     string `json:"chat_id"`
	ParentID   string `json:"parent_id"`
	ResponseID string `json:"response_id"`
}

type rawStreamChoice struct {
	Delta rawStreamDelta `json:"delta"`
}

type rawStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Status  string `json:"status,omitempty"`
}

type rawStreamError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// statusFinished is the payload-level terminal flag, distinct from the
// transport-level end of stream.
const statusFinished = "finished"

// DecodeStreamEvent parses one SSE data payload into a StreamEvent. A JSON
// parse failure returns MalformedStreamEventError; callers skip the line and
// continue.
func DecodeStreamEvent(data []byte) (*StreamEvent, error) {
	var raw rawStreamEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &app_errors.MalformedStreamEventError{Line: string(data), Err: err}
	}

	event := &StreamEvent{Usage: raw.Usage.Canonical()}

	switch {
	case raw.Error != nil:
		event.Kind = EventError
		event.ErrorMessage = raw.Error.Message
		if event.ErrorMessage == "" {
			event.ErrorMessage = raw.Error.Details
		}
		if event.ErrorMessage == "" {
			event.ErrorMessage = raw.Error.Code
		}

	case raw.Created != nil:
		event.Kind = EventCreated
		event.ParentID = raw.Created.ParentID
		event.ResponseID = raw.Created.ResponseID

	case len(raw.Choices) > 0:
		delta := raw.Choices[0].Delta
		event.Content = delta.Content
		if delta.Status == statusFinished {
			event.Kind = EventFinished
		} else {
			event.Kind = EventContentDelta
		}

	case raw.Usage != nil:
		event.Kind = EventUsageOnly

	default:
		event.Kind = EventUnknown
	}

	return event, nil
}
