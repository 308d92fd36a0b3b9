package runtime

import (
	"fmt"
	"runtime/debug"

	types "github.com/yungbote/knowledge-indexer/internal/domain/jobs"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for job_type=" + e.JobType
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }

// Dispatch runs the registered handler for jc.Job. Panics and returned errors
// fail the job; a handler that returns nil without a terminal status is
// marked succeeded.
func Dispatch(reg *Registry, jc *Context, log *logger.Logger) {
	job := jc.Job
	h, ok := reg.Lookup(job.JobType)
	if !ok {
		log.Warn("no handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return
	}

	returnedNil := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("job handler panic",
					"job_id", job.ID,
					"job_type", job.JobType,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				jc.Fail("panic", &panicError{Val: r})
			}
		}()
		if err := h.Run(jc); err != nil {
			jc.Fail("run", err)
			return
		}
		returnedNil = true
	}()

	if returnedNil && job.Status == types.StatusRunning {
		log.Warn("job handler returned without terminal status; marking succeeded", "job_id", job.ID, "job_type", job.JobType)
		jc.Succeed("done", nil)
	}
}
