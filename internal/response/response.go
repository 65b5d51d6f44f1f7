// Package response provides the JSON response helpers used by all gin handlers.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	app_errors "qwen-bridge/internal/errors"
)

// Success writes a 200 JSON body
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error writes an error in the OpenAI error envelope. APIErrors carry their
// own HTTP status; anything else becomes a 500.
func Error(c *gin.Context, err error) {
	var apiErr *app_errors.APIError
	if !errors.As(err, &apiErr) {
		apiErr = app_errors.NewAPIError(app_errors.ErrInternalServer, err.Error())
	}

	c.JSON(apiErr.HTTPStatus, gin.H{
		"error": gin.H{
			"message": apiErr.Message,
			"type":    errorType(apiErr.Code),
			"code":    string(apiErr.Code),
		},
	})
}

// errorType maps internal codes onto the coarse OpenAI error type names
func errorType(code app_errors.ErrorCode) string {
	switch code {
	case app_errors.ErrBadRequest:
		return "invalid_request_error"
	case app_errors.ErrResourceNotFound:
		return "not_found_error"
	case app_errors.ErrUpstreamError:
		return "upstream_error"
	default:
		return "api_error"
	}
}
