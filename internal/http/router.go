package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/knowledge-indexer/internal/http/handlers"
	httpMW "github.com/yungbote/knowledge-indexer/internal/http/middleware"
	"github.com/yungbote/knowledge-indexer/internal/observability"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	AuthMiddleware  *httpMW.AuthMiddleware
	DocumentHandler *httpH.DocumentHandler
	JobHandler      *httpH.JobHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	v1 := r.Group("/v1")
	if cfg.AuthMiddleware != nil {
		v1.Use(cfg.AuthMiddleware.RequireAuth())
	}

	if cfg.DocumentHandler != nil {
		docs := v1.Group("/knowledge/:knowledgeId/documents/:documentId")
		docs.GET("", cfg.DocumentHandler.Get)
		docs.POST("/index", cfg.DocumentHandler.Index)
		docs.POST("/pause", cfg.DocumentHandler.Pause)
		docs.POST("/resume", cfg.DocumentHandler.Resume)
	}

	if cfg.JobHandler != nil {
		v1.GET("/jobs/:jobId", cfg.JobHandler.GetJob)
	}

	return r
}
