package translator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	app_errors "qwen-bridge/internal/errors"
	"qwen-bridge/internal/models"
	"qwen-bridge/internal/qwen"
	"qwen-bridge/internal/toolcall"
)

// State is the translator lifecycle position
type State int

const (
	// StateStreaming consumes vendor events and buffers content
	StateStreaming State = iota
	// StateFinalizing emits the finish, usage and terminal frames
	StateFinalizing
	// StateDone means the output stream is complete
	StateDone
	// StateFailed means the stream terminated on a vendor or transport error
	StateFailed
)

// doneFrame is the transport-level terminal marker
var doneFrame = []byte("data: [DONE]\n\n")

// StreamingTranslator converts a raw vendor SSE byte stream into OpenAI
// chat.completion.chunk SSE frames.
//
// Content deltas are buffered, not forwarded: whether the assembled text is a
// tool call or plain text can only be classified once, on the complete
// buffer, and a tool call must be presented as a structured tool_calls delta
// rather than raw XML text. Partial plain-text chunks cannot be retroactively
// converted over SSE, so everything is withheld until the vendor's
// payload-level finished flag arrives.
//
// One instance serves one in-flight request and holds only local state; it
// performs no I/O and is not safe for concurrent use.
type StreamingTranslator struct {
	model     string
	extractor *toolcall.Extractor
	logger    *logrus.Entry

	id      string
	created int64

	state   State
	partial []byte

	// accumulator, discarded after the one-time flush
	buffered     strings.Builder
	usage        *models.Usage
	finishReason string

	parentID string
}

// NewStreamingTranslator creates a translator for one client request
func NewStreamingTranslator(model string, extractor *toolcall.Extractor) *StreamingTranslator {
	return &StreamingTranslator{
		model:     model,
		extractor: extractor,
		logger:    logrus.WithField("component", "streaming_translator"),
		id:        "chatcmpl-" + uuid.NewString(),
		created:   time.Now().Unix(),
		state:     StateStreaming,
	}
}

// State returns the current lifecycle state
func (t *StreamingTranslator) State() State { return t.state }

// Done reports whether the output stream is complete (normally or not)
func (t *StreamingTranslator) Done() bool {
	return t.state == StateDone || t.state == StateFailed
}

// ParentID returns the conversation parent id captured from the vendor's
// created event. It is only available once the stream is done; writing it
// back earlier would record a turn that may still fail.
func (t *StreamingTranslator) ParentID() (string, bool) {
	if t.state != StateDone || t.parentID == "" {
		return "", false
	}
	return t.parentID, true
}

// BufferedText returns the assistant text accumulated so far. Before the
// terminal event this is the withheld content; after it, the full turn.
func (t *StreamingTranslator) BufferedText() string {
	return t.buffered.String()
}

// Feed consumes one raw chunk of vendor bytes, in arrival order, and returns
// the SSE frames to forward to the client in emission order. Chunks may split
// lines arbitrarily; a trailing partial line is retained across calls.
//
// A non-nil error reports a vendor-side stream failure. The returned frames
// (a best-effort error frame and the terminal marker) must still be written
// before closing.
func (t *StreamingTranslator) Feed(chunk []byte) ([][]byte, error) {
	if t.Done() {
		return nil, nil
	}

	data := append(t.partial, chunk...)
	var frames [][]byte

	for {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			break
		}
		line := data[:nl]
		data = data[nl+1:]

		lineFrames, err := t.handleLine(line)
		frames = append(frames, lineFrames...)
		if err != nil {
			t.partial = nil
			return frames, err
		}
		if t.Done() {
			t.partial = nil
			return frames, nil
		}
	}

	t.partial = data
	return frames, nil
}

// Abort terminates the stream on a caller-observed failure (transport error,
// premature EOF). It emits a best-effort error frame plus the terminal marker
// so the client stream is never left hanging open.
func (t *StreamingTranslator) Abort(message string) [][]byte {
	if t.Done() {
		return nil
	}
	t.state = StateFailed
	return t.errorFrames(message)
}

// handleLine interprets one buffered line as an SSE data event
func (t *StreamingTranslator) handleLine(line []byte) ([][]byte, error) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, nil
	}
	if !bytes.HasPrefix(line, []byte("data:")) {
		// Comment or event-type line; the vendor stream is data-only
		return nil, nil
	}

	payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
		return nil, nil
	}

	event, err := qwen.DecodeStreamEvent(payload)
	if err != nil {
		// Malformed lines are skipped, never abort the stream
		var malformed *app_errors.MalformedStreamEventError
		if errors.As(err, &malformed) {
			t.logger.WithField("line_length", len(payload)).Debugf("Skipping malformed stream event: %v", malformed.Err)
			return nil, nil
		}
		return nil, err
	}

	if event.Usage != nil {
		// Last write wins
		t.usage = event.Usage
	}

	switch event.Kind {
	case qwen.EventCreated:
		// Consumed internally, never forwarded
		t.parentID = event.ParentID
		if event.ResponseID != "" {
			t.id = "chatcmpl-" + event.ResponseID
		}
		return nil, nil

	case qwen.EventContentDelta:
		t.buffered.WriteString(event.Content)
		return nil, nil

	case qwen.EventFinished:
		t.buffered.WriteString(event.Content)
		return t.flush(), nil

	case qwen.EventError:
		t.state = StateFailed
		frames := t.errorFrames(event.ErrorMessage)
		return frames, fmt.Errorf("%w: %s", app_errors.ErrVendorStream, event.ErrorMessage)

	default:
		return nil, nil
	}
}

// flush runs exactly once, on the vendor's terminal event: classifies the
// complete buffered text, emits the content or tool-call frames, then the
// finalization frames.
func (t *StreamingTranslator) flush() [][]byte {
	text := t.buffered.String()
	result := t.extractor.Extract(text)

	var frames [][]byte

	if result.HasToolCall {
		t.finishReason = models.FinishReasonToolCalls
		frames = t.toolCallFrames(result)
	} else {
		t.finishReason = models.FinishReasonStop
		frames = [][]byte{t.contentFrame(text, true)}
	}

	t.state = StateFinalizing
	frames = append(frames, t.finalizeFrames()...)
	t.state = StateDone
	return frames
}

// toolCallFrames emits the leading plain text (if any), the tool-call
// introduction, and the full arguments, in the OpenAI incremental tool-call
// delta shape.
func (t *StreamingTranslator) toolCallFrames(result toolcall.Result) [][]byte {
	var frames [][]byte

	withRole := true
	if result.TextBefore != "" {
		frames = append(frames, t.contentFrame(result.TextBefore, true))
		withRole = false
	}

	intro := models.Delta{
		ToolCalls: []models.ToolCall{
			{
				ID:   result.ToolCall.CallID,
				Type: "function",
				Function: models.FunctionCall{
					Name:      result.ToolCall.ToolName,
					Arguments: "",
				},
				Index: 0,
			},
		},
	}
	if withRole {
		intro.Role = "assistant"
	}
	frames = append(frames, t.deltaFrame(intro, nil))

	args := models.Delta{
		ToolCalls: []models.ToolCall{
			{
				Function: models.FunctionCall{Arguments: result.ToolCall.ArgumentsJSON},
				Index:    0,
			},
		},
	}
	frames = append(frames, t.deltaFrame(args, nil))

	return frames
}

// finalizeFrames emits the finish frame, the usage frame when usage was ever
// observed, and the terminal marker.
func (t *StreamingTranslator) finalizeFrames() [][]byte {
	finish := t.finishReason
	frames := [][]byte{t.deltaFrame(models.Delta{}, &finish)}

	if t.usage != nil {
		usageChunk := models.ChatCompletionChunk{
			ID:      t.id,
			Object:  "chat.completion.chunk",
			Created: t.created,
			Model:   t.model,
			Choices: []models.ChunkChoice{},
			Usage:   t.usage,
		}
		frames = append(frames, encodeFrame(usageChunk))
	}

	return append(frames, doneFrame)
}

// contentFrame emits one chunk carrying a text delta
func (t *StreamingTranslator) contentFrame(text string, withRole bool) []byte {
	delta := models.Delta{Content: &text}
	if withRole {
		delta.Role = "assistant"
	}
	return t.deltaFrame(delta, nil)
}

// deltaFrame wraps one delta in the chunk envelope
func (t *StreamingTranslator) deltaFrame(delta models.Delta, finishReason *string) []byte {
	chunk := models.ChatCompletionChunk{
		ID:      t.id,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
		Choices: []models.ChunkChoice{
			{Index: 0, Delta: delta, FinishReason: finishReason},
		},
	}
	return encodeFrame(chunk)
}

// errorFrames emits a best-effort error frame and the terminal marker
func (t *StreamingTranslator) errorFrames(message string) [][]byte {
	if message == "" {
		message = "upstream stream error"
	}
	errBody := models.ErrorResponse{
		Error: models.ErrorDetail{
			Message: message,
			Type:    "upstream_error",
		},
	}
	return [][]byte{encodeFrame(errBody), doneFrame}
}

// encodeFrame serializes a payload as one SSE data event
func encodeFrame(payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		// Only reachable for unmarshalable payloads, which none of the
		// chunk shapes are
		logrus.Errorf("Failed to encode SSE frame: %v", err)
		return nil
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)
	return frame
}
