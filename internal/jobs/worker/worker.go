// Package worker claims queued job_run rows and executes them on a bounded
// goroutine pool.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/semaphore"

	jobrepo "github.com/yungbote/knowledge-indexer/internal/data/repos/jobs"
	types "github.com/yungbote/knowledge-indexer/internal/domain/jobs"
	"github.com/yungbote/knowledge-indexer/internal/jobs/runtime"
	"github.com/yungbote/knowledge-indexer/internal/observability"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/envutil"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type Config struct {
	Concurrency       int
	PollInterval      time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	StaleRunning      time.Duration
	HeartbeatInterval time.Duration
	DrainTimeout      time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Concurrency:       envutil.Int("WORKER_CONCURRENCY", 4),
		PollInterval:      envutil.Duration("WORKER_POLL_INTERVAL", time.Second),
		MaxAttempts:       envutil.Int("WORKER_MAX_ATTEMPTS", 5),
		RetryDelay:        envutil.Duration("WORKER_RETRY_DELAY", 30*time.Second),
		StaleRunning:      envutil.Duration("WORKER_STALE_RUNNING", 30*time.Minute),
		HeartbeatInterval: envutil.Duration("WORKER_HEARTBEAT_INTERVAL", 30*time.Second),
		DrainTimeout:      envutil.Duration("WORKER_DRAIN_TIMEOUT", time.Minute),
	}
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 5
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	return c
}

type Worker struct {
	log      *logger.Logger
	repo     jobrepo.JobRunRepo
	registry *runtime.Registry
	notify   runtime.Notifier
	metrics  *observability.Metrics
	cfg      Config
	pool     *ants.Pool
	// slots bounds claimed jobs. ants keeps idle workers counted as running
	// until they expire, so pool.Free cannot gate claiming.
	slots    *semaphore.Weighted
	inflight sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, repo jobrepo.JobRunRepo, registry *runtime.Registry, notify runtime.Notifier, metrics *observability.Metrics, cfg Config) (*Worker, error) {
	if repo == nil || registry == nil {
		return nil, fmt.Errorf("worker: missing deps")
	}
	cfg = cfg.withDefaults()
	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	return &Worker{
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		metrics:  metrics,
		cfg:      cfg,
		pool:     pool,
		slots:    semaphore.NewWeighted(int64(cfg.Concurrency)),
	}, nil
}

// Run polls until ctx is done, then waits up to DrainTimeout for jobs in
// flight and releases the pool.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("starting job worker", "concurrency", w.cfg.Concurrency, "job_types", w.registry.Types())
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("job worker stopping")
			w.Close()
			return
		case <-ticker.C:
			if _, err := w.Poll(ctx); err != nil {
				w.log.Warn("claim failed", "error", err)
			}
		}
	}
}

// Poll claims jobs while fewer than Concurrency are in flight and submits
// them. It returns the number of jobs submitted.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	policy := jobrepo.ClaimPolicy{
		JobTypes:     w.registry.Types(),
		MaxAttempts:  w.cfg.MaxAttempts,
		RetryDelay:   w.cfg.RetryDelay,
		StaleRunning: w.cfg.StaleRunning,
	}
	submitted := 0
	for ctx.Err() == nil && w.slots.TryAcquire(1) {
		job, err := w.repo.ClaimNextRunnable(dbctx.New(ctx), policy)
		if err != nil {
			w.slots.Release(1)
			return submitted, err
		}
		if job == nil {
			w.slots.Release(1)
			return submitted, nil
		}
		w.inflight.Add(1)
		if err := w.pool.Submit(func() {
			defer w.inflight.Done()
			defer w.slots.Release(1)
			w.execute(ctx, job)
		}); err != nil {
			w.slots.Release(1)
			w.inflight.Done()
			runtime.NewContext(ctx, job, w.repo, w.notify).Fail("dispatch", fmt.Errorf("worker pool: %w", err))
			return submitted, nil
		}
		submitted++
	}
	return submitted, nil
}

func (w *Worker) execute(ctx context.Context, job *types.JobRun) {
	start := time.Now()
	stop := w.heartbeat(ctx, job)
	defer stop()

	w.log.Debug("job claimed", "job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	jc := runtime.NewContext(ctx, job, w.repo, w.notify)
	runtime.Dispatch(w.registry, jc, w.log)
	w.metrics.ObserveJobRun(job.JobType, job.Status, time.Since(start))
	w.log.Info("job finished",
		"job_id", job.ID,
		"job_type", job.JobType,
		"status", job.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (w *Worker) heartbeat(ctx context.Context, job *types.JobRun) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(w.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := w.repo.Heartbeat(dbctx.New(ctx), job.ID); err != nil {
					w.log.Warn("heartbeat failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

// Wait blocks until every submitted job has returned.
func (w *Worker) Wait() { w.inflight.Wait() }

// Close drains in-flight jobs, bounded by DrainTimeout, and releases the pool.
func (w *Worker) Close() {
	drained := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(drained)
	}()
	if w.cfg.DrainTimeout > 0 {
		select {
		case <-drained:
		case <-time.After(w.cfg.DrainTimeout):
			w.log.Warn("drain timed out; jobs in flight will be rescued as stale")
		}
	}
	w.pool.Release()
}
