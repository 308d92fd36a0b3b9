package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"gorm.io/datatypes"

	jobrepo "github.com/yungbote/knowledge-indexer/internal/data/repos/jobs"
	types "github.com/yungbote/knowledge-indexer/internal/domain/jobs"
	"github.com/yungbote/knowledge-indexer/internal/pkg/ctxutil"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
	"github.com/yungbote/knowledge-indexer/internal/temporalx/jobrun"
)

// Job executors.
const (
	ExecutorLocal    = "local"
	ExecutorTemporal = "temporal"
)

// WorkflowStarter is the part of the Temporal client the job service needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options temporalsdkclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error)
}

type JobService interface {
	// EnqueueIndexDocument queues an indexing job for the document. When one
	// is already queued or running it is returned instead and created is
	// false.
	EnqueueIndexDocument(dbc dbctx.Context, p *ctxutil.Principal, knowledgeID, documentID uint64) (job *types.JobRun, created bool, err error)
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error
	GetByID(dbc dbctx.Context, p *ctxutil.Principal, jobID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	log       *logger.Logger
	repo      jobrepo.JobRunRepo
	documents DocumentService
	executor  string
	temporal  WorkflowStarter
	taskQueue string
}

func NewJobService(baseLog *logger.Logger, repo jobrepo.JobRunRepo, documents DocumentService, executor string, tc WorkflowStarter, taskQueue string) (JobService, error) {
	switch executor {
	case "", ExecutorLocal:
		executor = ExecutorLocal
	case ExecutorTemporal:
		if tc == nil {
			return nil, fmt.Errorf("JOB_EXECUTOR=temporal requires TEMPORAL_ADDRESS")
		}
	default:
		return nil, fmt.Errorf("unknown JOB_EXECUTOR %q", executor)
	}
	return &jobService{
		log:       baseLog.With("service", "JobService"),
		repo:      repo,
		documents: documents,
		executor:  executor,
		temporal:  tc,
		taskQueue: taskQueue,
	}, nil
}

func (s *jobService) EnqueueIndexDocument(dbc dbctx.Context, p *ctxutil.Principal, knowledgeID, documentID uint64) (*types.JobRun, bool, error) {
	doc, err := s.documents.Get(dbc, p, knowledgeID, documentID)
	if err != nil {
		return nil, false, err
	}

	busy, err := s.repo.HasRunnableForEntity(dbc, types.JobTypeIndexKnowledgeDocument, types.EntityKnowledgeDocument, doc.ID)
	if err != nil {
		return nil, false, err
	}
	if busy {
		existing, err := s.repo.GetLatestForEntity(dbc, types.JobTypeIndexKnowledgeDocument, types.EntityKnowledgeDocument, doc.ID)
		if err == nil && existing != nil {
			return existing, false, nil
		}
	}

	payload := map[string]any{
		"organization_id":       doc.OrganizationID,
		"project_id":            doc.ProjectID,
		"knowledge_id":          doc.KnowledgeID,
		"knowledge_document_id": doc.ID,
	}
	if tr, ok := ctxutil.TraceFrom(dbc.Ctx); ok {
		if tr.TraceID != "" {
			payload["trace_id"] = tr.TraceID
		}
		if tr.RequestID != "" {
			payload["request_id"] = tr.RequestID
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}
	now := time.Now()
	job := &types.JobRun{
		ID:             uuid.New(),
		OrganizationID: doc.OrganizationID,
		ProjectID:      doc.ProjectID,
		JobType:        types.JobTypeIndexKnowledgeDocument,
		EntityType:     types.EntityKnowledgeDocument,
		EntityID:       doc.ID,
		Status:         types.StatusQueued,
		Stage:          "queued",
		Message:        "Queued",
		Payload:        datatypes.JSON(raw),
		Result:         datatypes.JSON(`{}`),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.repo.Create(dbc, []*types.JobRun{job}); err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	s.log.Info("index job enqueued", "job_id", job.ID, "knowledge_document_id", doc.ID, "executor", s.executor)

	// Inside a caller's transaction the workflow starts after commit.
	if dbc.Tx != nil {
		return job, true, nil
	}
	if err := s.Dispatch(dbc, job.ID); err != nil {
		return job, true, err
	}
	return job, true, nil
}

// Dispatch starts the job on the temporal executor. The local executor claims
// queued rows itself, so there is nothing to do.
func (s *jobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if s.executor != ExecutorTemporal {
		return nil
	}
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id")
	}
	ctx := ctxutil.Default(dbc.Ctx)
	_, err := s.temporal.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             s.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}, jobrun.WorkflowName, jobID.String())
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if err == nil || errors.As(err, &started) {
		return nil
	}

	now := time.Now()
	if uerr := s.repo.UpdateFields(dbctx.New(context.WithoutCancel(ctx)), jobID, map[string]interface{}{
		"status":        types.StatusFailed,
		"stage":         "dispatch",
		"message":       "",
		"error":         err.Error(),
		"last_error_at": now,
		"locked_at":     nil,
	}); uerr != nil {
		s.log.Error("recording dispatch failure failed", "job_id", jobID, "error", uerr)
	}
	return fmt.Errorf("dispatch job %s: %w", jobID, err)
}

func (s *jobService) GetByID(dbc dbctx.Context, p *ctxutil.Principal, jobID uuid.UUID) (*types.JobRun, error) {
	if p == nil {
		return nil, ErrUnauthorized
	}
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.ProjectID != p.ProjectID || job.OrganizationID != p.OrganizationID {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return job, nil
}
