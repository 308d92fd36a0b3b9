package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/knowledge-indexer/internal/http"
	httpH "github.com/yungbote/knowledge-indexer/internal/http/handlers"
	httpMW "github.com/yungbote/knowledge-indexer/internal/http/middleware"
	"github.com/yungbote/knowledge-indexer/internal/observability"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

func wireRouter(log *logger.Logger, cfg Config, db *gorm.DB, svc Services, metrics *observability.Metrics) *gin.Engine {
	log.Info("Wiring router...")
	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	health := httpH.NewHealthHandler(nil)
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			health = httpH.NewHealthHandler(sqlDB)
		}
	}

	return http.NewRouter(http.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     cfg.ServiceName,
		CORSOrigins:     httpMW.CORSOriginsFromEnv(),
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, svc.Auth),
		DocumentHandler: httpH.NewDocumentHandler(log, svc.Documents, svc.Jobs),
		JobHandler:      httpH.NewJobHandler(svc.Jobs),
		HealthHandler:   health,
	})
}
