// Package temporalworker hosts the job_run workflow and its activity.
package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	jobrepo "github.com/yungbote/knowledge-indexer/internal/data/repos/jobs"
	jobrt "github.com/yungbote/knowledge-indexer/internal/jobs/runtime"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
	"github.com/yungbote/knowledge-indexer/internal/temporalx"
	"github.com/yungbote/knowledge-indexer/internal/temporalx/jobrun"
)

type Runner struct {
	log      *logger.Logger
	cfg      temporalx.Config
	tc       temporalsdkclient.Client
	jobRepo  jobrepo.JobRunRepo
	registry *jobrt.Registry
	notify   jobrt.Notifier
}

func NewRunner(
	log *logger.Logger,
	cfg temporalx.Config,
	tc temporalsdkclient.Client,
	jobRepo jobrepo.JobRunRepo,
	registry *jobrt.Registry,
	notify jobrt.Notifier,
) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if jobRepo == nil || registry == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	return &Runner{
		log:      log.With("component", "TemporalWorker"),
		cfg:      cfg,
		tc:       tc,
		jobRepo:  jobRepo,
		registry: registry,
		notify:   notify,
	}, nil
}

// Start polls the task queue until ctx is done. Start failures are retried
// with backoff for up to WorkerStartMaxWait.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("starting temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)
	if r.cfg.AutoRegister {
		if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
			r.log.Warn("temporal namespace ensure failed; worker start will retry", "error", err)
		}
	}

	deadline := time.Now().Add(r.cfg.WorkerStartMaxWait)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("temporal worker started", "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		notFound := errors.As(startErr, &nfe)
		if notFound && r.cfg.AutoRegister {
			_ = temporalx.EnsureNamespace(ctx, r.log, r.cfg)
		}
		if r.cfg.WorkerStartMaxWait <= 0 || time.Now().After(deadline) {
			if notFound {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("temporal worker failed to start; retrying", "attempt", attempt, "error", startErr)
		time.Sleep(temporalx.ClampBackoff(r.cfg.Backoff, r.cfg.BackoffMax, attempt))
	}
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := r.cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	acts := &jobrun.Activities{
		Log:      r.log,
		Jobs:     r.jobRepo,
		Registry: r.registry,
		Notify:   r.notify,
	}
	w.RegisterWorkflowWithOptions(jobrun.Workflow, workflow.RegisterOptions{Name: jobrun.WorkflowName})
	w.RegisterActivityWithOptions(acts.Execute, activity.RegisterOptions{Name: jobrun.ActivityExecute})
	return w
}
