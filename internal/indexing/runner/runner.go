// Package runner drives one knowledge document through extract, transform
// and load, recording progress on the document row.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/knowledge-indexer/internal/clients/redis"
	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/indexing/embedder"
	"github.com/yungbote/knowledge-indexer/internal/observability"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

const (
	TechniqueParagraph = "paragraph"
	DefaultBatchSize   = 50
)

const (
	EventStarted   = "indexing.started"
	EventCompleted = "indexing.completed"
	EventFailed    = "indexing.failed"
)

var techniques = map[string]bool{TechniqueParagraph: true}

// DocumentPausedError stops a run when the document is paused between stages
// or batches.
type DocumentPausedError struct {
	DocumentID uint64
}

func (e *DocumentPausedError) Error() string {
	return fmt.Sprintf("knowledge document %d is paused", e.DocumentID)
}

// Result summarises a finished run.
type Result struct {
	Status     string `json:"index_status"`
	TokenCount int    `json:"token_count"`
	Segments   int    `json:"segments"`
	Error      string `json:"error,omitempty"`
}

type Runner struct {
	deps      Deps
	log       *logger.Logger
	knowledge *types.Knowledge
	doc       *types.KnowledgeDocument
	technique string
	batchSize int
	embed     embedder.Embedder
}

type Option func(*Runner)

func WithTechnique(name string) Option {
	return func(r *Runner) { r.technique = name }
}

func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// New builds a runner for one document. Each runner gets its own embedder, so
// credentials resolved during the run are not shared with other runs.
func New(deps Deps, k *types.Knowledge, doc *types.KnowledgeDocument, opts ...Option) (*Runner, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if k == nil || doc == nil {
		return nil, errors.New("runner: knowledge and document are required")
	}
	r := &Runner{
		deps:      deps,
		knowledge: k,
		doc:       doc,
		technique: TechniqueParagraph,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !techniques[r.technique] {
		return nil, fmt.Errorf("runner: unknown index technique %q", r.technique)
	}
	r.log = deps.Log.With(
		"knowledge_id", k.ID,
		"knowledge_document_id", doc.ID,
		"technique", r.technique,
	)
	r.embed = deps.Embedders(k, doc)
	return r, nil
}

// Run executes the pipeline. Every failure, including a pause or a panic in a
// stage, ends with the document in the error status; Run itself never fails.
func (r *Runner) Run(ctx context.Context) Result {
	ctx, span := observability.StartSpan(ctx, "indexing.run",
		attribute.Int64("knowledge_id", int64(r.knowledge.ID)),
		attribute.Int64("knowledge_document_id", int64(r.doc.ID)),
	)

	r.setStatus(ctx, map[string]interface{}{
		"index_status":          types.IndexStatusSplitting,
		"processing_started_at": r.deps.now(),
		"error":                 "",
	})
	r.publish(ctx, EventStarted, types.IndexStatusSplitting, "")
	r.log.Info("indexing started")

	load, err := r.runStages(ctx)
	if err != nil {
		observability.EndSpan(span, err)
		return r.fail(ctx, err)
	}
	observability.EndSpan(span, nil)
	return r.complete(ctx, load)
}

func (r *Runner) runStages(ctx context.Context) (res loadResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("indexing panic", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("indexing panic: %v", p)
		}
	}()

	ext, err := runStage(ctx, r, stageExtract, r.extract)
	if err != nil {
		return res, err
	}
	r.setStatus(ctx, map[string]interface{}{
		"word_count":           ext.WordCount,
		"parsing_completed_at": r.deps.now(),
	})

	tr, err := runStage(ctx, r, stageTransform, func(ctx context.Context) (transformResult, error) {
		return r.transform(ctx, ext)
	})
	if err != nil {
		return res, err
	}

	return runStage(ctx, r, stageLoad, func(ctx context.Context) (loadResult, error) {
		return r.load(ctx, tr)
	})
}

const (
	stageExtract   = "extract"
	stageTransform = "transform"
	stageLoad      = "load"
)

// runStage runs fn after the pause check, inside its own span, and records
// the stage latency.
func runStage[T any](ctx context.Context, r *Runner, name string, fn func(context.Context) (T, error)) (T, error) {
	if err := r.checkPaused(ctx); err != nil {
		var zero T
		return zero, err
	}
	start := time.Now()
	sctx, span := observability.StartSpan(ctx, "indexing."+name)
	out, err := fn(sctx)
	observability.EndSpan(span, err)

	status := "ok"
	if err != nil {
		status = "error"
	}
	r.deps.Metrics.ObserveStage(name, status, time.Since(start))
	return out, err
}

func (r *Runner) checkPaused(ctx context.Context) error {
	paused, err := r.deps.Documents.IsPaused(dbctx.New(ctx), r.doc.ID)
	if err != nil {
		return opError("check paused", err)
	}
	if paused {
		return &DocumentPausedError{DocumentID: r.doc.ID}
	}
	return nil
}

func (r *Runner) complete(ctx context.Context, load loadResult) Result {
	now := r.deps.now()
	r.setStatus(ctx, map[string]interface{}{
		"index_status":     types.IndexStatusCompleted,
		"completed_at":     now,
		"token_count":      load.Tokens,
		"indexing_latency": load.Elapsed.Seconds(),
	})
	r.publish(ctx, EventCompleted, types.IndexStatusCompleted, "")
	r.deps.Metrics.ObserveIndexingRun(types.IndexStatusCompleted, load.Tokens, load.Segments)
	r.log.Info("indexing completed",
		"tokens", load.Tokens,
		"segments", load.Segments,
		"batches", load.Batches,
		"latency_s", load.Elapsed.Seconds(),
	)
	return Result{Status: types.IndexStatusCompleted, TokenCount: load.Tokens, Segments: load.Segments}
}

func (r *Runner) fail(ctx context.Context, err error) Result {
	msg := err.Error()
	fields := []interface{}{"error", msg}
	var se *stageError
	if errors.As(err, &se) {
		fields = append(fields, "op", se.op)
		if se.batch > 0 {
			fields = append(fields, "batch", se.batch)
		}
	}
	var paused *DocumentPausedError
	if errors.As(err, &paused) {
		r.log.Warn("indexing stopped, document paused")
	} else {
		r.log.Error("indexing failed", fields...)
	}
	r.setStatus(ctx, map[string]interface{}{
		"index_status": types.IndexStatusError,
		"error":        msg,
		"completed_at": r.deps.now(),
	})
	r.publish(ctx, EventFailed, types.IndexStatusError, msg)
	r.deps.Metrics.ObserveIndexingRun(types.IndexStatusError, 0, 0)
	return Result{Status: types.IndexStatusError, Error: msg}
}

// setStatus writes document fields with a context detached from
// cancellation, so a cancelled run still records its outcome.
func (r *Runner) setStatus(ctx context.Context, updates map[string]interface{}) {
	if err := r.deps.Documents.UpdateFields(dbctx.New(context.WithoutCancel(ctx)), r.doc.ID, updates); err != nil {
		r.log.Error("document status update failed", "error", err, "fields", len(updates))
	}
}

func (r *Runner) publish(ctx context.Context, event, status, msg string) {
	if r.deps.Status == nil {
		return
	}
	ev := redis.StatusEvent{
		Event:               event,
		KnowledgeID:         r.knowledge.ID,
		KnowledgeDocumentID: r.doc.ID,
		Status:              status,
		Error:               msg,
		At:                  r.deps.now(),
	}
	if err := r.deps.Status.Publish(context.WithoutCancel(ctx), ev); err != nil {
		r.log.Warn("status publish failed", "event", event, "error", err)
	}
}
