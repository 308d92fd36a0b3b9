package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	types "github.com/yungbote/knowledge-indexer/internal/domain/jobs"
)

// Workflow executes one job_run row through a single activity. Retries are
// driven by the workflow retry policy set at start, so a failed job surfaces
// as a workflow error.
func Workflow(ctx workflow.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		jobID = strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	}
	if jobID == "" {
		return fmt.Errorf("jobrun: missing job_id")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 6 * time.Hour,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var out Result
	if err := workflow.ExecuteActivity(ctx, ActivityExecute, jobID).Get(ctx, &out); err != nil {
		return err
	}
	switch out.Status {
	case types.StatusSucceeded, types.StatusCanceled:
		return nil
	case types.StatusFailed:
		return fmt.Errorf("job %s failed (stage=%s): %s", jobID, out.Stage, out.Error)
	default:
		return fmt.Errorf("job %s ended in unexpected status %q", jobID, out.Status)
	}
}
