// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file carries the correlation and failure-path plumbing every request
// relies on:
//
//   - RequestID() assigns or propagates an X-Request-ID so one id ties the
//     access log, the handler's own log lines, and the client error body
//     together.
//   - Recovery() turns panics into a JSON 500 carrying that id, or a bare
//     500 when a streaming handler already wrote part of a response.
//   - LoggerFrom() hands handlers the request-scoped zerolog.Logger that
//     RedactingLogger attached (falling back to the global logger when the
//     access logger is not installed, as in unit tests).
//
// Install RequestID before RedactingLogger and Recovery so both see the id.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key holding the correlation id.
	requestIDKey = "requestID"
	// loggerKey is the Gin context key holding the request-scoped logger.
	loggerKey = "logger"
	// requestIDHeader propagates the correlation id to and from clients.
	requestIDHeader = "X-Request-ID"
	// maxQueryLogLength caps how many bytes of a raw query string reach the
	// access log.
	maxQueryLogLength = 2048
)

// RequestID reuses the caller-supplied X-Request-ID when present (header
// lookup is case-insensitive) and mints a UUIDv4 otherwise. The id is stored
// in the Gin context and echoed on the response so clients can quote it when
// reporting a failure.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Recovery converts a handler panic into a structured 500.
//
// The panic value and stack are logged with the correlation id. When nothing
// has been written yet the client gets the standard JSON error envelope;
// once a stream or partial body is on the wire only the status can be
// aborted, so no JSON is emitted on that path.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", asString(rid)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header("Content-Type", "application/json")
			c.Header(requestIDHeader, asString(rid))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": asString(rid),
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger attached by
// RedactingLogger, or the global logger when none was attached. The result
// is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// asString unwraps a context value as a string, with "" for anything else.
func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// truncate caps s at max bytes, appending an ellipsis when it cut anything.
// max <= 0 disables the cap. Byte (not rune) slicing is fine for log output.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
