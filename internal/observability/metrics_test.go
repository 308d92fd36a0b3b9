package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveIndexingRun("completed", 10, 2)
	m.ObserveStage("load", "ok", time.Second)
	m.ObserveVectorSinkOperation("qdrant", "add_texts", "success", time.Millisecond)
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("WritePrometheus on nil: %v", err)
	}
}

func TestMetricsWritePrometheus(t *testing.T) {
	m := newMetrics()
	m.ObserveIndexingRun("completed", 60, 3)
	m.ObserveIndexingRun("error", 0, 0)
	m.ObserveVectorSinkOperation("qdrant", "add_texts", "success", 20*time.Millisecond)

	if got := m.indexingRuns.Value("completed"); got != 1 {
		t.Fatalf("indexing runs completed: want=1 got=%v", got)
	}
	if got := m.tokens.Value(); got != 60 {
		t.Fatalf("tokens: want=60 got=%v", got)
	}
	if got := m.vectorOps.Count("qdrant", "add_texts", "success"); got != 1 {
		t.Fatalf("vector ops count: want=1 got=%d", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`ki_indexing_runs_total{status="completed"} 1`,
		`ki_indexing_tokens_total 60`,
		`ki_vector_sink_operation_duration_seconds_count{provider="qdrant",operation="add_texts",status="success"} 1`,
		`le="+Inf"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"a"}, []string{`x"y`})
	if got != `{a="x\"y"}` {
		t.Fatalf("labelString: got=%s", got)
	}
	if got := withLe("", "1"); got != `{le="1"}` {
		t.Fatalf("withLe empty: got=%s", got)
	}
}
