// Package respond renders the structured error envelope shared by handlers
// and middleware. Every non-2xx response leaving the service uses this
// shape.
package respond

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/arcade-auth/internal/apperr"
)

// RequestIDKey is the gin context key holding the request ID assigned by
// the request logger middleware.
const RequestIDKey = "request_id"

// Envelope is the machine-readable error payload.
type Envelope struct {
	Kind      string              `json:"kind"`
	Title     string              `json:"title"`
	Status    int                 `json:"status"`
	Detail    string              `json:"detail"`
	Instance  string              `json:"instance"`
	Timestamp time.Time           `json:"timestamp"`
	TraceID   string              `json:"trace_id"`
	Fields    map[string][]string `json:"fields,omitempty"`
}

// Error writes the envelope for a classified failure. Internal errors are
// logged with their full cause and surfaced with a generic detail.
func Error(c *gin.Context, err error) {
	appErr := apperr.From(err)

	if appErr.Kind == apperr.KindInternal {
		zap.L().Error("internal error",
			zap.String(RequestIDKey, traceID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}

	c.JSON(appErr.Kind.Status(), Envelope{
		Kind:      appErr.Kind.String(),
		Title:     appErr.Kind.Title(),
		Status:    appErr.Kind.Status(),
		Detail:    appErr.Detail,
		Instance:  c.Request.URL.Path,
		Timestamp: time.Now().UTC(),
		TraceID:   traceID(c),
		Fields:    appErr.Fields,
	})
}

// AbortError writes the envelope and stops the handler chain. Used by
// middleware.
func AbortError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

func traceID(c *gin.Context) string {
	if span := trace.SpanFromContext(c.Request.Context()); span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	if id, ok := c.Get(RequestIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
