package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/knowledge-indexer/internal/pkg/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// AttachTraceContext stamps every request with a request id and a trace id.
// Caller-supplied ids win; otherwise the trace id comes from the active span
// (otelgin runs first) or a fresh uuid.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tr := ctxutil.Trace{
			TraceID:   strings.TrimSpace(c.GetHeader(headerTraceID)),
			RequestID: strings.TrimSpace(c.GetHeader(headerRequestID)),
		}
		if tr.RequestID == "" {
			tr.RequestID = uuid.NewString()
		}
		if tr.TraceID == "" {
			if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
				tr.TraceID = sc.TraceID().String()
			} else {
				tr.TraceID = uuid.NewString()
			}
		}

		c.Request = c.Request.WithContext(ctxutil.WithTrace(c.Request.Context(), tr))
		h := c.Writer.Header()
		h.Set(headerTraceID, tr.TraceID)
		h.Set(headerRequestID, tr.RequestID)
		c.Next()
	}
}
