package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/knowledge-indexer/internal/pkg/ctxutil"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// Route params logged under the names used by the indexing logs.
var loggedParams = [][2]string{
	{"knowledgeId", "knowledge_id"},
	{"documentId", "knowledge_document_id"},
	{"jobId", "job_id"},
}

// RequestLogger writes one line per API call. Health checks log at debug.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if log == nil {
			return
		}

		fields := requestFields(c, time.Since(start))
		status := c.Writer.Status()
		switch {
		case status >= 500:
			log.Error("api request", fields...)
		case status >= 400:
			log.Warn("api request", fields...)
		case c.FullPath() == "/healthz":
			log.Debug("api request", fields...)
		default:
			log.Info("api request", fields...)
		}
	}
}

func requestFields(c *gin.Context, elapsed time.Duration) []interface{} {
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	fields := []interface{}{
		"method", c.Request.Method,
		"route", route,
		"status", c.Writer.Status(),
		"duration_ms", elapsed.Milliseconds(),
	}
	for _, p := range loggedParams {
		if v := c.Param(p[0]); v != "" {
			fields = append(fields, p[1], v)
		}
	}

	ctx := c.Request.Context()
	if tr, ok := ctxutil.TraceFrom(ctx); ok {
		fields = append(fields, "trace_id", tr.TraceID, "request_id", tr.RequestID)
	}
	if p := ctxutil.GetPrincipal(ctx); p != nil {
		fields = append(fields, "caller", p.Subject, "project_id", p.ProjectID, "organization_id", p.OrganizationID)
	}
	if err := c.Errors.Last(); err != nil {
		fields = append(fields, "error", err.Error())
	}
	return fields
}
