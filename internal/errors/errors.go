// Package errors defines the error taxonomy shared by the protocol core and
// the HTTP surface.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
)

// Sentinel errors raised by the protocol core.
var (
	// ErrEmptyConversation indicates a request with no messages reached the
	// assembler. Surfaced to the client as a 400.
	ErrEmptyConversation = errors.New("empty conversation: at least one message is required")

	// ErrVendorStream indicates the vendor stream reported an error mid-flight.
	ErrVendorStream = errors.New("vendor stream error")
)

// MissingVendorFieldError indicates a constructed vendor message lacks one of
// the required fields. The vendor rejects partial messages with an opaque
// error, so this is validated before every send.
type MissingVendorFieldError struct {
	Field string
}

func (e *MissingVendorFieldError) Error() string {
	return fmt.Sprintf("vendor message missing required field %q", e.Field)
}

// MalformedStreamEventError wraps a JSON decode failure for a single SSE line.
// It is recovered locally (skip and continue) and never surfaced to the client.
type MalformedStreamEventError struct {
	Line string
	Err  error
}

func (e *MalformedStreamEventError) Error() string {
	return fmt.Sprintf("malformed stream event: %v", e.Err)
}

func (e *MalformedStreamEventError) Unwrap() error { return e.Err }

// ErrorCode identifies a category of API error
type ErrorCode string

const (
	ErrBadRequest         ErrorCode = "BAD_REQUEST"
	ErrInternalServer     ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrResourceNotFound   ErrorCode = "RESOURCE_NOT_FOUND"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrSessionUnavailable ErrorCode = "SESSION_UNAVAILABLE"
)

// APIError is the error shape returned by the HTTP surface
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var httpStatusByCode = map[ErrorCode]int{
	ErrBadRequest:         http.StatusBadRequest,
	ErrInternalServer:     http.StatusInternalServerError,
	ErrResourceNotFound:   http.StatusNotFound,
	ErrUpstreamError:      http.StatusBadGateway,
	ErrSessionUnavailable: http.StatusServiceUnavailable,
}

// NewAPIError creates an APIError with the status implied by its code
func NewAPIError(code ErrorCode, message string) *APIError {
	status, ok := httpStatusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &APIError{Code: code, Message: message, HTTPStatus: status}
}

// NewAPIErrorWithUpstream keeps the upstream status code instead of the
// code's default status.
func NewAPIErrorWithUpstream(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: statusCode}
}

// IsIgnorableError reports whether err is client-side noise (disconnects,
// cancellations) that should not be logged as a failure.
func IsIgnorableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "client disconnected") ||
		strings.Contains(msg, "http2: stream closed")
}
