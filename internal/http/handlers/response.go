// Package handlers provides the HTTP handler implementations.
//
// This file defines the response envelopes shared by all endpoints. Error
// responses always carry a stable `code` plus the request correlation ID;
// fail() centralizes formatting and makes sure 5xx responses are logged with
// request context.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "replay_rejected",
//	  "message": "delivery already processed"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-task-assistant/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code"`
	// Human-readable message
	Message string `json:"message"`
}

// ReplyResponse is the success envelope for the webhook endpoint. Reply is
// the exact text the relay should forward back to the sender.
type ReplyResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Reply     string `json:"reply"`
}

// fail aborts the request with a structured error and logs server-side
// errors with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail(), for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// reply writes the webhook success envelope.
func reply(c *gin.Context, text string) {
	c.JSON(http.StatusOK, ReplyResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Reply:     text,
	})
}
