package app

import (
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
	"github.com/yungbote/knowledge-indexer/internal/services"
)

type Services struct {
	Auth      services.AuthService
	Documents services.DocumentService
	Jobs      services.JobService
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, repos Repos) (Services, error) {
	log.Info("Wiring services...")
	documents := services.NewDocumentService(log, repos.Documents, repos.Segments)

	var starter services.WorkflowStarter
	taskQueue := ""
	if clients.Temporal != nil {
		starter = clients.Temporal
		taskQueue = clients.TemporalConfig.TaskQueue
	}
	jobs, err := services.NewJobService(log, repos.JobRuns, documents, cfg.JobExecutor, starter, taskQueue)
	if err != nil {
		return Services{}, err
	}

	return Services{
		Auth:      services.NewAuthService(log, cfg.JWTSecret, cfg.ServiceKey),
		Documents: documents,
		Jobs:      jobs,
	}, nil
}
