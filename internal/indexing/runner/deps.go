package runner

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/knowledge-indexer/internal/clients/redis"
	knowledgerepo "github.com/yungbote/knowledge-indexer/internal/data/repos/knowledge"
	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
	"github.com/yungbote/knowledge-indexer/internal/indexing/embedder"
	"github.com/yungbote/knowledge-indexer/internal/indexing/profile"
	"github.com/yungbote/knowledge-indexer/internal/indexing/vector"
	"github.com/yungbote/knowledge-indexer/internal/observability"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// DocumentStore is the slice of the document repo the runner writes status
// through.
type DocumentStore interface {
	UpdateFields(dbc dbctx.Context, id uint64, updates map[string]interface{}) error
	IsPaused(dbc dbctx.Context, id uint64) (bool, error)
}

type Extractor interface {
	Extract(ctx context.Context, doc *types.KnowledgeDocument) ([]chunk.Chunk, error)
}

// StatusPublisher fans out run lifecycle events. Optional.
type StatusPublisher interface {
	Publish(ctx context.Context, ev redis.StatusEvent) error
}

// Deps holds the process-wide collaborators shared by every run.
type Deps struct {
	Documents DocumentStore
	Segments  knowledgerepo.SegmentStore
	Extractor Extractor
	Profile   *profile.Profile
	Sink      vector.Sink
	Embedders embedder.Factory
	Status    StatusPublisher
	Clock     func() time.Time
	Log       *logger.Logger
	Metrics   *observability.Metrics
}

func (d Deps) validate() error {
	if d.Documents == nil || d.Segments == nil || d.Extractor == nil || d.Profile == nil || d.Sink == nil || d.Embedders == nil || d.Log == nil {
		return errors.New("runner: missing deps")
	}
	return nil
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}
