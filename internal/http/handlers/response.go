// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response utilities shared by every endpoint: the
// structured error envelope, centralized failure logging, and small success
// helpers so all handlers answer in the same shape.
//
// Conventions:
//   - Error responses always carry an ErrorResponse with a stable `code`.
//   - fail() writes the envelope and logs 5xx responses with request context.
//   - ok() and noContent() cover the success paths.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "log not found"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "id": "abc123", "status": "finalized" }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutrilog/go-meal-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints. RequestID is
// echoed from the X-Request-ID header so clients can correlate their errors
// with server logs; Code is a stable machine-readable string (constants in
// errors.go); Message is safe to show to end users. The struct also feeds the
// Swagger documentation.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"log not found"`
}

// fail aborts the request with a structured error envelope. Server errors
// (status >= 500) are additionally logged through the request-scoped logger
// so every 5xx leaves a trace with the request context attached.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
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

// Fail exposes fail() to other packages (router fallbacks, middleware) so
// they can return the same envelope without reaching into unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes body as JSON with the given status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent answers 204 for operations with no response body.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
