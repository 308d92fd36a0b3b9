package vector

import (
	"context"
	"time"

	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
	"github.com/yungbote/knowledge-indexer/internal/observability"
)

type instrumentedSink struct {
	provider string
	inner    Sink
	metrics  *observability.Metrics
}

// Instrument wraps inner so every call records latency and outcome. A nil
// metrics registry leaves the calls untouched apart from the indirection.
func Instrument(provider string, inner Sink, metrics *observability.Metrics) Sink {
	if inner == nil {
		return nil
	}
	return &instrumentedSink{provider: provider, inner: inner, metrics: metrics}
}

func (s *instrumentedSink) CreateCollection(ctx context.Context, name string, dim int) error {
	start := time.Now()
	err := s.inner.CreateCollection(ctx, name, dim)
	s.observe("create_collection", err == nil, time.Since(start))
	return err
}

func (s *instrumentedSink) AddTexts(ctx context.Context, name string, chunks []chunk.Chunk, embeddings [][]float32) error {
	start := time.Now()
	err := s.inner.AddTexts(ctx, name, chunks, embeddings)
	s.observe("add_texts", err == nil, time.Since(start))
	return err
}

func (s *instrumentedSink) TextExists(ctx context.Context, name, id string) bool {
	start := time.Now()
	ok := s.inner.TextExists(ctx, name, id)
	s.observe("text_exists", true, time.Since(start))
	return ok
}

func (s *instrumentedSink) observe(operation string, ok bool, dur time.Duration) {
	status := "success"
	if !ok {
		status = "error"
	}
	s.metrics.ObserveVectorSinkOperation(s.provider, operation, status, dur)
}
