package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
	"github.com/yungbote/knowledge-indexer/internal/platform/qdrant"
)

type stubQdrant struct {
	readyErr error
	creates  int
}

func (s *stubQdrant) CreateCollection(context.Context, string, int) error {
	s.creates++
	return nil
}

func (s *stubQdrant) AddTexts(context.Context, string, []chunk.Chunk, [][]float32) error {
	return nil
}

func (s *stubQdrant) TextExists(context.Context, string, string) bool { return false }

func (s *stubQdrant) Ready(context.Context) error { return s.readyErr }

func withStubQdrant(t *testing.T, stub *stubQdrant, captured *qdrant.Config) {
	t.Helper()
	orig := newQdrantSink
	t.Cleanup(func() { newQdrantSink = orig })
	newQdrantSink = func(_ *logger.Logger, cfg qdrant.Config) (qdrantSink, error) {
		if captured != nil {
			*captured = cfg
		}
		return stub, nil
	}
}

func TestResolveVectorSinkQdrantSelected(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	stub := &stubQdrant{}
	var captured qdrant.Config
	withStubQdrant(t, stub, &captured)

	sink, closer, err := resolveVectorSink(context.Background(), logger.Nop(), Config{VectorProvider: "qdrant"}, nil)
	if err != nil {
		t.Fatalf("resolveVectorSink: %v", err)
	}
	defer closer()
	if err := sink.CreateCollection(context.Background(), "vector_index_kb", 3); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if stub.creates != 1 {
		t.Fatalf("underlying sink not called; creates=%d", stub.creates)
	}
	if captured.URL != "http://qdrant:6333" {
		t.Fatalf("qdrant.URL: want=%q got=%q", "http://qdrant:6333", captured.URL)
	}
}

func TestResolveVectorSinkQdrantNotReady(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	withStubQdrant(t, &stubQdrant{readyErr: errors.New("503")}, nil)

	_, _, err := resolveVectorSink(context.Background(), logger.Nop(), Config{VectorProvider: "qdrant"}, nil)
	if got := vectorProviderBootstrapErrorCode(err); got != VectorProviderBootstrapErrorConnectFailed {
		t.Fatalf("code: want=%q got=%q", VectorProviderBootstrapErrorConnectFailed, got)
	}
}

func TestResolveVectorSinkErrors(t *testing.T) {
	t.Setenv("QDRANT_URL", "")
	t.Setenv("PGVECTOR_DSN", "")

	cases := []struct {
		provider string
		want     VectorProviderBootstrapErrorCode
	}{
		{"qdrant", VectorProviderBootstrapErrorMissingQdrantURL},
		{"pgvector", VectorProviderBootstrapErrorMissingPgvectorDSN},
		{"pinecone", VectorProviderBootstrapErrorInvalidProvider},
	}
	for _, tc := range cases {
		sink, closer, err := resolveVectorSink(context.Background(), logger.Nop(), Config{VectorProvider: tc.provider}, nil)
		if sink != nil || closer == nil {
			t.Fatalf("%s: want nil sink and non-nil closer", tc.provider)
		}
		if got := vectorProviderBootstrapErrorCode(err); got != tc.want {
			t.Fatalf("%s: code want=%q got=%q", tc.provider, tc.want, got)
		}
	}
}

func TestClassifyVectorProviderBootstrapErrorInvalidURL(t *testing.T) {
	err := classifyVectorProviderBootstrapError("qdrant", &qdrant.ConfigError{Code: qdrant.ConfigErrorInvalidURL, Value: "qdrant"})
	if got := vectorProviderBootstrapErrorCode(err); got != VectorProviderBootstrapErrorInvalidQdrantURL {
		t.Fatalf("code: want=%q got=%q", VectorProviderBootstrapErrorInvalidQdrantURL, got)
	}
	err = classifyVectorProviderBootstrapError("qdrant", errors.New("boom"))
	if got := vectorProviderBootstrapErrorCode(err); got != VectorProviderBootstrapErrorProviderInitFailed {
		t.Fatalf("code: want=%q got=%q", VectorProviderBootstrapErrorProviderInitFailed, got)
	}
}
