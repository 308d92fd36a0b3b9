package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/knowledge-indexer/internal/clients/redis"
	jobrepo "github.com/yungbote/knowledge-indexer/internal/data/repos/jobs"
	types "github.com/yungbote/knowledge-indexer/internal/domain/jobs"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
)

// Job lifecycle events published through the Notifier.
const (
	EventJobProgress  = "job.progress"
	EventJobFailed    = "job.failed"
	EventJobSucceeded = "job.succeeded"
)

// Notifier receives job lifecycle events. Optional.
type Notifier interface {
	Publish(ctx context.Context, ev redis.StatusEvent) error
}

/*
Context is the handle a job handler gets for one execution of a job_run row.
Handlers never write job_run directly; Progress, Fail and Succeed are the
only sanctioned lifecycle writes, and each is guarded so a canceled job is
never overwritten.
*/
type Context struct {
	Ctx     context.Context
	Job     *types.JobRun
	Repo    jobrepo.JobRunRepo
	Notify  Notifier
	payload map[string]any
}

// NewContext decodes the payload eagerly. A malformed payload decodes to an
// empty map; handlers report the missing fields.
func NewContext(ctx context.Context, job *types.JobRun, repo jobrepo.JobRunRepo, notify Notifier) *Context {
	c := &Context{
		Ctx:    ctx,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	if m == nil {
		m = map[string]any{}
	}
	c.payload = m
	return nil
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadUint reads a positive integer id. JSON numbers and decimal strings
// are both accepted.
func (c *Context) PayloadUint(key string) (uint64, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		if t <= 0 || t != float64(uint64(t)) {
			return 0, false
		}
		return uint64(t), true
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(t), 10, 64)
		if err != nil || n == 0 {
			return 0, false
		}
		return n, true
	case json.Number:
		n, err := strconv.ParseUint(t.String(), 10, 64)
		if err != nil || n == 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(c.Ctx)
}

func (c *Context) write(updates map[string]interface{}) bool {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return true
	}
	ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.New(c.ctx()), c.Job.ID, []string{types.StatusCanceled}, updates)
	return err == nil && ok
}

// Progress records a non-terminal stage and refreshes the heartbeat.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := time.Now()
	if !c.write(map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"message":      msg,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.notify(EventJobProgress, "")
}

// Fail marks the run failed. The worker may retry it while attempts remain.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if !c.write(map[string]interface{}{
		"status":        types.StatusFailed,
		"stage":         stage,
		"message":       "",
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = types.StatusFailed
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
	c.notify(EventJobFailed, msg)
}

// Succeed marks the run succeeded and stores result as JSON.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := time.Now()
	res := datatypes.JSON(`{}`)
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	if !c.write(map[string]interface{}{
		"status":       types.StatusSucceeded,
		"stage":        finalStage,
		"progress":     100,
		"message":      "",
		"error":        "",
		"result":       res,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = types.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.notify(EventJobSucceeded, "")
}

func (c *Context) notify(event, msg string) {
	if c.Notify == nil || c.Job == nil {
		return
	}
	ev := redis.StatusEvent{
		Event:    event,
		JobID:    c.Job.ID.String(),
		Status:   c.Job.Status,
		Stage:    c.Job.Stage,
		Progress: c.Job.Progress,
		Error:    msg,
		At:       time.Now(),
	}
	if c.Job.EntityType == types.EntityKnowledgeDocument {
		ev.KnowledgeDocumentID = c.Job.EntityID
	}
	_ = c.Notify.Publish(c.ctx(), ev)
}

// MissingFieldError names the first required payload field that is absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("payload field %s is required", e.Field)
}
