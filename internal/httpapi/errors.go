// Package httpapi implements the gin-based HTTP surface: the OpenAI-shaped
// /v1/chat/completions endpoint, a thin Anthropic-shaped /v1/messages
// adapter, the read-only /v1/models projection, and the account/proxy-key
// CRUD surface — all wired against the dispatcher (C9) instead of the
// teacher's coreauth.Manager/coreexecutor, but keeping its error-body shape
// and streaming conventions (sdk/api/handlers/handlers.go).
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the OpenAI-compatible error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the human-readable message plus the OpenAI error
// taxonomy fields clients switch on.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// buildErrorBody renders status/errText into the OpenAI error JSON shape,
// passing already-valid JSON through unchanged so upstream error payloads
// survive intact.
func buildErrorBody(status int, errText string) []byte {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	if strings.TrimSpace(errText) == "" {
		errText = http.StatusText(status)
	}
	trimmed := strings.TrimSpace(errText)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return []byte(trimmed)
	}

	errType := "invalid_request_error"
	var code string
	switch status {
	case http.StatusUnauthorized:
		errType = "authentication_error"
		code = "invalid_api_key"
	case http.StatusForbidden:
		errType = "permission_error"
		code = "insufficient_quota"
	case http.StatusTooManyRequests:
		errType = "rate_limit_error"
		code = "rate_limit_exceeded"
	case http.StatusNotFound:
		errType = "invalid_request_error"
		code = "model_not_found"
	default:
		if status >= http.StatusInternalServerError {
			errType = "server_error"
			code = "internal_server_error"
		}
	}

	payload, err := json.Marshal(ErrorResponse{Error: ErrorDetail{Message: errText, Type: errType, Code: code}})
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":{"message":%q,"type":"server_error","code":"internal_server_error"}}`, errText))
	}
	return payload
}

// writeError sends err as an OpenAI-shaped JSON error body, deriving the
// HTTP status by duck-typing the `interface{ StatusCode() int }` every
// ProxyError and local statusErr implements (matching the teacher's
// interfaces.ErrorMessage status-extraction pattern).
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if withStatus, ok := err.(interface{ StatusCode() int }); ok {
		status = withStatus.StatusCode()
	}
	if withRetry, ok := err.(interface{ RetryAfterSeconds() float64 }); ok {
		if s := withRetry.RetryAfterSeconds(); s > 0 {
			c.Header("Retry-After", fmt.Sprintf("%.0f", s))
		}
	}
	c.Data(status, "application/json", buildErrorBody(status, err.Error()))
}
