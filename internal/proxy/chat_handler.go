// Package proxy exposes the OpenAI-compatible HTTP surface and ties the
// protocol pipeline together: parse the client request, resolve the session,
// assemble the vendor payload, call upstream and translate the answer back.
package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"qwen-bridge/internal/config"
	app_errors "qwen-bridge/internal/errors"
	"qwen-bridge/internal/models"
	"qwen-bridge/internal/qwen"
	"qwen-bridge/internal/recorder"
	"qwen-bridge/internal/response"
	"qwen-bridge/internal/session"
	"qwen-bridge/internal/toolcall"
	"qwen-bridge/internal/translator"
	"qwen-bridge/internal/upstream"
)

// sessionHeader carries the client's conversation key. Requests without it
// share one default conversation, which matches the single-user desktop
// origin of the protocol.
const sessionHeader = "X-Session-Id"

const defaultConversationKey = "default"

// Server handles the OpenAI-compatible endpoints
type Server struct {
	upstream *upstream.Client
	sessions session.Store
	recorder *recorder.Recorder
	cfg      *config.Config
	logger   *logrus.Entry
}

// NewServer creates the handler set
func NewServer(client *upstream.Client, sessions session.Store, rec *recorder.Recorder, cfg *config.Config) *Server {
	return &Server{
		upstream: client,
		sessions: sessions,
		recorder: rec,
		cfg:      cfg,
		logger:   logrus.WithField("component", "proxy"),
	}
}

// HandleChatCompletions is the POST /v1/chat/completions entry point
func (s *Server) HandleChatCompletions(c *gin.Context) {
	startTime := time.Now()

	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logrus.Errorf("Failed to read request body: %v", err)
		response.Error(c, app_errors.NewAPIError(app_errors.ErrBadRequest, "Failed to read request body"))
		return
	}
	c.Request.Body.Close()

	var req models.ChatCompletionRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrBadRequest, fmt.Sprintf("Failed to parse request: %v", err)))
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrBadRequest, err.Error()))
		return
	}

	model := s.resolveModel(req.Model)
	conversationKey := s.conversationKey(c)
	isStream := req.IsStreaming()

	sess, err := s.resolveSession(c, conversationKey, model)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"conversation": conversationKey,
			"error":        err,
		}).Error("Failed to resolve session")
		response.Error(c, err)
		s.logRequest(conversationKey, model, isStream, false, http.StatusServiceUnavailable, startTime, bodyBytes, nil, err)
		return
	}

	extractor := toolcall.NewExtractor(toolcall.ToolNames(req.Tools))

	vendorReq, err := qwen.AssembleRequest(req.Messages, *sess, req.Tools, model, isStream)
	if err != nil {
		response.Error(c, assemblyError(err))
		s.logRequest(conversationKey, model, isStream, false, http.StatusBadRequest, startTime, bodyBytes, nil, err)
		return
	}

	if isStream {
		s.handleStreaming(c, conversationKey, model, vendorReq, extractor, startTime, bodyBytes)
	} else {
		s.handleNormal(c, conversationKey, model, vendorReq, extractor, startTime, bodyBytes)
	}
}

// resolveModel falls back to the configured default when the client names a
// model the vendor does not serve.
func (s *Server) resolveModel(requested string) string {
	for _, m := range s.cfg.AvailableModels {
		if m == requested {
			return requested
		}
	}
	s.logger.WithFields(logrus.Fields{
		"requested": requested,
		"default":   s.cfg.DefaultModel,
	}).Debug("Unknown model requested, using default")
	return s.cfg.DefaultModel
}

func (s *Server) conversationKey(c *gin.Context) string {
	if key := c.GetHeader(sessionHeader); key != "" {
		return key
	}
	return defaultConversationKey
}

// resolveSession loads the conversation state, creating the vendor chat on
// first contact.
func (s *Server) resolveSession(c *gin.Context, key, model string) (*qwen.Session, error) {
	ctx := c.Request.Context()

	stored, err := s.sessions.Get(ctx, key)
	if err != nil {
		return nil, app_errors.NewAPIError(app_errors.ErrSessionUnavailable, "session store unavailable")
	}

	if stored == nil || stored.ChatID == "" {
		chatID, err := s.upstream.NewChat(ctx, model)
		if err != nil {
			return nil, err
		}
		stored = &session.Session{Key: key, ChatID: chatID}
		if err := s.sessions.Save(ctx, stored); err != nil {
			return nil, app_errors.NewAPIError(app_errors.ErrSessionUnavailable, "failed to persist session")
		}
		s.logger.WithFields(logrus.Fields{
			"conversation": key,
			"chat_id":      chatID,
		}).Debug("Created vendor chat for new conversation")
	}

	return &qwen.Session{ChatID: stored.ChatID, ParentID: stored.ParentID}, nil
}

// handleNormal runs the non-streaming path
func (s *Server) handleNormal(
	c *gin.Context,
	conversationKey, model string,
	vendorReq *qwen.CompletionRequest,
	extractor *toolcall.Extractor,
	startTime time.Time,
	requestBody []byte,
) {
	vendorResp, err := s.upstream.Completion(c.Request.Context(), vendorReq)
	if err != nil {
		logUpstreamError("completion", err)
		if !app_errors.IsIgnorableError(err) {
			response.Error(c, err)
		}
		s.logRequest(conversationKey, model, false, false, upstreamStatus(err), startTime, requestBody, nil, err)
		return
	}

	if !vendorResp.Success {
		// The vendor reports hard failures inside an HTTP 200 body; surfacing
		// them as upstream errors keeps them from reading as empty completions.
		apiErr := app_errors.NewAPIError(app_errors.ErrUpstreamError, "vendor reported an unsuccessful completion")
		logUpstreamError("completion", apiErr)
		response.Error(c, apiErr)
		s.logRequest(conversationKey, model, false, false, apiErr.HTTPStatus, startTime, requestBody, nil, apiErr)
		return
	}

	translation := translator.TranslateCompletion(vendorResp, model, extractor)

	if translation.ParentID != "" {
		if err := s.sessions.SetParentID(c.Request.Context(), conversationKey, translation.ParentID); err != nil {
			s.logger.WithField("conversation", conversationKey).Errorf("Failed to write back parent id: %v", err)
		}
	}

	response.Success(c, translation.Completion)

	responseBody, _ := json.Marshal(translation.Completion)
	s.logRequest(conversationKey, model, false, true, http.StatusOK, startTime, requestBody, responseBody, nil)
}

// handleStreaming runs the streaming path: the raw vendor SSE body is fed
// through the translator and the produced frames are flushed to the client as
// they appear.
func (s *Server) handleStreaming(
	c *gin.Context,
	conversationKey, model string,
	vendorReq *qwen.CompletionRequest,
	extractor *toolcall.Extractor,
	startTime time.Time,
	requestBody []byte,
) {
	body, err := s.upstream.StreamCompletion(c.Request.Context(), vendorReq)
	if err != nil {
		logUpstreamError("stream completion", err)
		if !app_errors.IsIgnorableError(err) {
			response.Error(c, err)
		}
		s.logRequest(conversationKey, model, true, false, upstreamStatus(err), startTime, requestBody, nil, err)
		return
	}
	defer body.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		logrus.Error("Streaming unsupported by the writer")
		response.Error(c, app_errors.NewAPIError(app_errors.ErrInternalServer, "streaming unsupported"))
		return
	}

	st := translator.NewStreamingTranslator(model, extractor)

	var streamErr error
	buf := make([]byte, 16*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			frames, feedErr := st.Feed(buf[:n])
			writeFrames(c, flusher, frames)
			if feedErr != nil {
				streamErr = feedErr
				break
			}
		}
		if st.Done() {
			break
		}
		if readErr != nil {
			if readErr != io.EOF {
				logUpstreamError("stream read", readErr)
			}
			if !st.Done() {
				// Vendor stream ended without the terminal event
				writeFrames(c, flusher, st.Abort("upstream stream ended unexpectedly"))
				streamErr = readErr
				if streamErr == io.EOF {
					streamErr = errors.New("upstream stream ended unexpectedly")
				}
			}
			break
		}
	}

	if parentID, ok := st.ParentID(); ok {
		if err := s.sessions.SetParentID(c.Request.Context(), conversationKey, parentID); err != nil {
			s.logger.WithField("conversation", conversationKey).Errorf("Failed to write back parent id: %v", err)
		}
	}

	success := streamErr == nil && st.State() == translator.StateDone
	statusCode := http.StatusOK
	var responseBody []byte
	if success {
		responseBody, _ = json.Marshal(gin.H{"content": st.BufferedText()})
	} else {
		statusCode = upstreamStatus(streamErr)
	}
	s.logRequest(conversationKey, model, true, success, statusCode, startTime, requestBody, responseBody, streamErr)
}

// writeFrames writes translator frames and flushes after each one
func writeFrames(c *gin.Context, flusher http.Flusher, frames [][]byte) {
	for _, frame := range frames {
		if len(frame) == 0 {
			continue
		}
		if _, err := c.Writer.Write(frame); err != nil {
			logUpstreamError("client write", err)
			return
		}
		flusher.Flush()
	}
}

// logRequest hands one request log entry to the async recorder
func (s *Server) logRequest(
	conversationKey, model string,
	isStream, isSuccess bool,
	statusCode int,
	startTime time.Time,
	requestBody, responseBody []byte,
	finalError error,
) {
	if s.recorder == nil {
		return
	}

	entry := &session.RequestLog{
		SessionKey:   conversationKey,
		Model:        model,
		IsStream:     isStream,
		IsSuccess:    isSuccess,
		StatusCode:   statusCode,
		DurationMs:   time.Since(startTime).Milliseconds(),
		RequestBody:  requestBody,
		ResponseBody: responseBody,
	}
	if finalError != nil {
		entry.ErrorMessage = finalError.Error()
	}

	s.recorder.Submit(entry)
}

// assemblyError maps protocol-core assembly failures onto client errors
func assemblyError(err error) error {
	var missing *app_errors.MissingVendorFieldError
	switch {
	case errors.Is(err, app_errors.ErrEmptyConversation):
		return app_errors.NewAPIError(app_errors.ErrBadRequest, err.Error())
	case errors.As(err, &missing):
		return app_errors.NewAPIError(app_errors.ErrInternalServer, err.Error())
	default:
		return app_errors.NewAPIError(app_errors.ErrInternalServer, err.Error())
	}
}

// upstreamStatus extracts the HTTP status carried by an upstream APIError
func upstreamStatus(err error) int {
	var apiErr *app_errors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus
	}
	return http.StatusBadGateway
}
