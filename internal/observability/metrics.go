package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	jobtypes "github.com/yungbote/knowledge-indexer/internal/domain/jobs"
	"github.com/yungbote/knowledge-indexer/internal/platform/envutil"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type Metrics struct {
	apiRequests   *CounterVec
	apiLatency    *HistogramVec
	apiInflight   *Gauge
	indexingRuns  *CounterVec
	stageLatency  *HistogramVec
	tokens        *Counter
	segments      *Counter
	embedRequests *CounterVec
	vectorOps     *HistogramVec
	jobRuns       *HistogramVec
	queueDepth    *GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool { return envutil.Bool("METRICS_ENABLED", false) }

// Current returns the process metrics, or nil when metrics are disabled. All
// methods tolerate a nil receiver.
func Current() *Metrics { return instance }

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	latency := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	stage := []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800}
	return &Metrics{
		apiRequests: NewCounterVec("ki_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("ki_api_request_duration_seconds", "API request latency in seconds.", []string{"method", "route", "status"}, latency),
		apiInflight: NewGauge("ki_api_inflight_requests", "In-flight API requests."),
		indexingRuns: NewCounterVec("ki_indexing_runs_total", "Indexing runs by terminal status.",
			[]string{"status"}),
		stageLatency: NewHistogramVec("ki_indexing_stage_duration_seconds", "Indexing stage latency in seconds.",
			[]string{"stage", "status"}, stage),
		tokens:        NewCounter("ki_indexing_tokens_total", "Tokens reported by the embedding provider."),
		segments:      NewCounter("ki_indexing_segments_total", "Segments written to the vector sink."),
		embedRequests: NewCounterVec("ki_embedding_requests_total", "Embedding requests by provider/status.", []string{"provider", "status"}),
		vectorOps: NewHistogramVec("ki_vector_sink_operation_duration_seconds", "Vector sink operation latency.",
			[]string{"provider", "operation", "status"}, latency),
		jobRuns: NewHistogramVec("ki_job_run_duration_seconds", "Job handler latency by job type/status.",
			[]string{"job_type", "status"}, stage),
		queueDepth: NewGaugeVec("ki_job_queue_depth", "Job rows by status.", []string{"status"}),
	}
}

func (m *Metrics) collectors() []collector {
	return []collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.indexingRuns, m.stageLatency, m.tokens, m.segments,
		m.embedRequests, m.vectorOps, m.jobRuns, m.queueDepth,
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil || strings.TrimSpace(addr) == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && log != nil {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range m.collectors() {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method, route, status = orUnknown(method), orUnknown(route), orUnknown(status)
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Add(1)
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Add(-1)
	}
}

// ObserveIndexingRun counts a finished run by its terminal document status.
func (m *Metrics) ObserveIndexingRun(status string, tokens, segments int) {
	if m == nil {
		return
	}
	m.indexingRuns.Inc(orUnknown(status))
	m.tokens.Add(float64(tokens))
	m.segments.Add(float64(segments))
}

func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.Observe(dur.Seconds(), orUnknown(stage), orUnknown(status))
}

func (m *Metrics) IncEmbeddingRequest(provider, status string) {
	if m == nil {
		return
	}
	m.embedRequests.Inc(orUnknown(provider), orUnknown(status))
}

func (m *Metrics) ObserveVectorSinkOperation(provider, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.Observe(dur.Seconds(), orUnknown(provider), orUnknown(operation), orUnknown(status))
}

func (m *Metrics) ObserveJobRun(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.Observe(dur.Seconds(), orUnknown(jobType), orUnknown(status))
}

// StartJobQueueCollector polls job_runs grouped by status every
// METRICS_SCRAPE_INTERVAL until ctx is done.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
	statuses := []string{
		jobtypes.StatusQueued, jobtypes.StatusRunning, jobtypes.StatusSucceeded,
		jobtypes.StatusFailed, jobtypes.StatusCanceled,
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			var rows []struct {
				Status string
				Count  int64
			}
			if err := db.WithContext(ctx).
				Model(&jobtypes.JobRun{}).
				Select("status, count(*) as count").
				Group("status").
				Scan(&rows).Error; err != nil {
				if log != nil {
					log.Warn("metrics: job queue depth query failed", "error", err)
				}
				continue
			}
			for _, s := range statuses {
				m.queueDepth.Set(0, s)
			}
			for _, row := range rows {
				m.queueDepth.Set(float64(row.Count), orUnknown(row.Status))
			}
		}
	}()
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
