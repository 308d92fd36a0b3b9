// Package indexdocument runs the indexing pipeline for one knowledge
// document as an index_knowledge_document job.
package indexdocument

import (
	types "github.com/yungbote/knowledge-indexer/internal/domain/jobs"
	knowledge "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/indexing/runner"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// Required payload fields, validated in this order.
var requiredFields = []string{
	"organization_id",
	"project_id",
	"knowledge_id",
	"knowledge_document_id",
}

type DocumentLookup interface {
	GetForKnowledge(dbc dbctx.Context, knowledgeID, id uint64) (*knowledge.KnowledgeDocument, error)
}

type KnowledgeLookup interface {
	GetWithOptions(dbc dbctx.Context, id uint64) (*knowledge.Knowledge, error)
}

type Pipeline struct {
	log       *logger.Logger
	documents DocumentLookup
	knowledge KnowledgeLookup
	deps      runner.Deps
	opts      []runner.Option
}

func New(baseLog *logger.Logger, documents DocumentLookup, knowledge KnowledgeLookup, deps runner.Deps, opts ...runner.Option) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", types.JobTypeIndexKnowledgeDocument),
		documents: documents,
		knowledge: knowledge,
		deps:      deps,
		opts:      opts,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeIndexKnowledgeDocument }
