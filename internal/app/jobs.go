package app

import (
	"context"
	"fmt"

	"github.com/yungbote/knowledge-indexer/internal/jobs/pipeline/indexdocument"
	jobrt "github.com/yungbote/knowledge-indexer/internal/jobs/runtime"
	"github.com/yungbote/knowledge-indexer/internal/jobs/worker"
	"github.com/yungbote/knowledge-indexer/internal/observability"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
	"github.com/yungbote/knowledge-indexer/internal/services"
	"github.com/yungbote/knowledge-indexer/internal/temporalx/temporalworker"
)

type Jobs struct {
	Registry *jobrt.Registry
	Notify   jobrt.Notifier
	Worker   *worker.Worker
	Temporal *temporalworker.Runner
}

func wireJobs(log *logger.Logger, cfg Config, clients Clients, repos Repos, indexing Indexing, metrics *observability.Metrics) (Jobs, error) {
	log.Info("Wiring jobs...")
	registry := jobrt.NewRegistry()
	if err := registry.Register(indexdocument.New(log, repos.Documents, repos.Knowledge, indexing.Deps, indexing.Options...)); err != nil {
		return Jobs{}, err
	}

	var notify jobrt.Notifier
	if clients.Status != nil {
		notify = clients.Status
	}
	jobs := Jobs{Registry: registry, Notify: notify}

	switch cfg.JobExecutor {
	case services.ExecutorTemporal:
		r, err := temporalworker.NewRunner(log, clients.TemporalConfig, clients.Temporal, repos.JobRuns, registry, notify)
		if err != nil {
			return Jobs{}, fmt.Errorf("init temporal worker: %w", err)
		}
		jobs.Temporal = r
	default:
		w, err := worker.NewWorker(log, repos.JobRuns, registry, notify, metrics, worker.ConfigFromEnv())
		if err != nil {
			return Jobs{}, fmt.Errorf("init job worker: %w", err)
		}
		jobs.Worker = w
	}
	return jobs, nil
}

// start runs the configured executor until ctx is done.
func (j Jobs) start(ctx context.Context) error {
	if j.Temporal != nil {
		if err := j.Temporal.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}
	if j.Worker != nil {
		j.Worker.Run(ctx)
	}
	return nil
}

func (j Jobs) close() {
	if j.Worker != nil {
		j.Worker.Close()
	}
}
