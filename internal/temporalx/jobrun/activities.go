package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/knowledge-indexer/internal/data/repos/jobs"
	types "github.com/yungbote/knowledge-indexer/internal/domain/jobs"
	jobrt "github.com/yungbote/knowledge-indexer/internal/jobs/runtime"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type Activities struct {
	Log      *logger.Logger
	Jobs     jobrepo.JobRunRepo
	Registry *jobrt.Registry
	Notify   jobrt.Notifier

	// HeartbeatEvery paces temporal heartbeats; DB heartbeats run at 3x.
	HeartbeatEvery time.Duration
}

func (a *Activities) Execute(ctx context.Context, jobID string) (Result, error) {
	res := Result{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.Jobs == nil || a.Registry == nil || a.Log == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(res.JobID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id %q", jobID)
	}

	dbc := dbctx.New(ctx)
	job, err := a.Jobs.GetByID(dbc, id)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, fmt.Errorf("jobrun: job %s not found", id)
	}
	if job.IsTerminal() {
		return fill(res, job), nil
	}

	now := time.Now()
	ok, err := a.Jobs.UpdateFieldsUnlessStatus(dbc, id, []string{types.StatusCanceled}, map[string]interface{}{
		"status":       types.StatusRunning,
		"attempts":     gorm.Expr("attempts + 1"),
		"locked_at":    now,
		"heartbeat_at": now,
	})
	if err != nil {
		return res, fmt.Errorf("jobrun: mark running: %w", err)
	}
	if !ok {
		res.Status = types.StatusCanceled
		return res, nil
	}
	job.Status = types.StatusRunning
	job.Attempts++
	job.LockedAt = &now
	job.HeartbeatAt = &now

	stop := a.startHeartbeat(ctx, id)
	jobrt.Dispatch(a.Registry, jobrt.NewContext(ctx, job, a.Jobs, a.Notify), a.Log)
	stop()

	updated, err := a.Jobs.GetByID(dbc, id)
	if err != nil {
		return res, err
	}
	if updated == nil {
		return res, fmt.Errorf("jobrun: job %s vanished", id)
	}
	return fill(res, updated), nil
}

func fill(res Result, job *types.JobRun) Result {
	res.Status = job.Status
	res.Stage = job.Stage
	res.Error = job.Error
	return res
}

func (a *Activities) startHeartbeat(ctx context.Context, id uuid.UUID) func() {
	every := a.HeartbeatEvery
	if every <= 0 {
		every = 10 * time.Second
	}
	done := make(chan struct{})
	go func() {
		temporalHB := time.NewTicker(every)
		defer temporalHB.Stop()
		dbHB := time.NewTicker(3 * every)
		defer dbHB.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-temporalHB.C:
				activity.RecordHeartbeat(ctx)
			case <-dbHB.C:
				_ = a.Jobs.Heartbeat(dbctx.New(ctx), id)
			}
		}
	}()
	return func() { close(done) }
}
