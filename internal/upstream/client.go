// Package upstream is the thin HTTP client for the vendor chat API.
package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	app_errors "qwen-bridge/internal/errors"
	"qwen-bridge/internal/qwen"
)

const (
	newChatPath    = "/api/v2/chats/new"
	completionPath = "/api/v2/chat/completions"
)

// Client talks to the vendor API. Two http.Clients are held: the default one
// carries a request timeout, the stream one must not, since a streaming
// response legitimately outlives any fixed deadline.
type Client struct {
	baseURL      string
	authToken    string
	httpClient   *http.Client
	streamClient *http.Client
	logger       *logrus.Entry
}

// Options configures the client
type Options struct {
	BaseURL        string
	AuthToken      string
	RequestTimeout time.Duration // non-streaming requests only (default: 60s)
}

// NewClient creates a vendor API client
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("upstream base url is required")
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:      opts.BaseURL,
		authToken:    opts.AuthToken,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		logger:       logrus.WithField("component", "upstream_client"),
	}, nil
}

type newChatRequest struct {
	Title    string   `json:"title"`
	Models   []string `json:"models"`
	ChatMode string   `json:"chat_mode"`
	ChatType string   `json:"chat_type"`
}

type newChatResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ID string `json:"id"`
	} `json:"data"`
}

// NewChat creates a vendor conversation and returns its chat id. Every
// session needs one before its first completion.
func (c *Client) NewChat(ctx context.Context, model string) (string, error) {
	payload := newChatRequest{
		Title:    "New Chat",
		Models:   []string{model},
		ChatMode: qwen.ChatModeNormal,
		ChatType: qwen.ChatTypeText,
	}

	body, err := c.postJSON(ctx, c.httpClient, newChatPath, payload, false)
	if err != nil {
		return "", err
	}
	defer body.Close()

	bodyBytes, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read chat creation response: %w", err)
	}

	var parsed newChatResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse chat creation response: %w", err)
	}
	if parsed.Data.ID == "" {
		return "", app_errors.NewAPIError(app_errors.ErrUpstreamError, "chat creation returned no chat id")
	}

	c.logger.WithField("chat_id", parsed.Data.ID).Debug("Created vendor chat")
	return parsed.Data.ID, nil
}

// Completion sends a non-streaming completion request
func (c *Client) Completion(ctx context.Context, req *qwen.CompletionRequest) (*qwen.CompletionResponse, error) {
	path := completionPath + "?chat_id=" + req.ChatID

	body, err := c.postJSON(ctx, c.httpClient, path, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	bodyBytes, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}

	var parsed qwen.CompletionResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse completion response: %w", err)
	}
	return &parsed, nil
}

// StreamCompletion sends a streaming completion request and returns the raw
// SSE body. The caller owns the reader and must close it.
func (c *Client) StreamCompletion(ctx context.Context, req *qwen.CompletionRequest) (io.ReadCloser, error) {
	path := completionPath + "?chat_id=" + req.ChatID
	return c.postJSON(ctx, c.streamClient, path, req, true)
}

// postJSON sends one POST and returns the response body on 2xx. Error bodies
// are drained, decompressed when gzip-encoded, and folded into an APIError
// carrying the upstream status.
func (c *Client) postJSON(ctx context.Context, client *http.Client, path string, payload any, stream bool) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("X-Accel-Buffering", "no")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if app_errors.IsIgnorableError(err) {
			return nil, err
		}
		return nil, app_errors.NewAPIError(app_errors.ErrUpstreamError, fmt.Sprintf("upstream request failed: %v", err))
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		errorBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			c.logger.Errorf("Failed to read upstream error body: %v", readErr)
			errorBody = []byte("failed to read upstream error body")
		}
		errorBody = handleGzipCompression(resp, errorBody)

		c.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"path":   path,
		}).Debugf("Upstream returned error: %s", string(errorBody))

		return nil, app_errors.NewAPIErrorWithUpstream(resp.StatusCode, app_errors.ErrUpstreamError, string(errorBody))
	}

	return resp.Body, nil
}

// handleGzipCompression checks for gzip encoding and decompresses the body if necessary.
func handleGzipCompression(resp *http.Response, bodyBytes []byte) []byte {
	if resp.Header.Get("Content-Encoding") == "gzip" {
		reader, gzipErr := gzip.NewReader(bytes.NewReader(bodyBytes))
		if gzipErr != nil {
			logrus.Warnf("Failed to create gzip reader for error body: %v", gzipErr)
			return bodyBytes
		}
		defer reader.Close()

		decompressedBody, readAllErr := io.ReadAll(reader)
		if readAllErr != nil {
			logrus.Warnf("Failed to decompress gzip error body: %v", readAllErr)
			return bodyBytes
		}
		return decompressedBody
	}
	return bodyBytes
}
