package indexdocument

import (
	"fmt"

	"github.com/yungbote/knowledge-indexer/internal/indexing/runner"
	jobrt "github.com/yungbote/knowledge-indexer/internal/jobs/runtime"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	ids := make(map[string]uint64, len(requiredFields))
	for _, field := range requiredFields {
		v, ok := jc.PayloadUint(field)
		if !ok {
			jc.Fail("validate", &jobrt.MissingFieldError{Field: field})
			return nil
		}
		ids[field] = v
	}
	knowledgeID, documentID := ids["knowledge_id"], ids["knowledge_document_id"]
	log := p.log.With("job_id", jc.Job.ID, "knowledge_id", knowledgeID, "knowledge_document_id", documentID)

	dbc := dbctx.New(jc.Ctx)
	k, err := p.knowledge.GetWithOptions(dbc, knowledgeID)
	if err != nil {
		jc.Fail("load", fmt.Errorf("load knowledge %d: %w", knowledgeID, err))
		return nil
	}
	if k == nil || k.ProjectID != ids["project_id"] || k.OrganizationID != ids["organization_id"] {
		jc.Fail("load", fmt.Errorf("knowledge %d not found", knowledgeID))
		return nil
	}
	doc, err := p.documents.GetForKnowledge(dbc, knowledgeID, documentID)
	if err != nil {
		jc.Fail("load", fmt.Errorf("load knowledge document %d: %w", documentID, err))
		return nil
	}
	if doc == nil {
		jc.Fail("load", fmt.Errorf("knowledge document %d not found", documentID))
		return nil
	}

	r, err := runner.New(p.deps, k, doc, p.opts...)
	if err != nil {
		jc.Fail("build", err)
		return nil
	}
	jc.Progress("indexing", 5, "Indexing document")
	res := r.Run(jc.Ctx)
	log.Info("indexing run finished", "index_status", res.Status, "token_count", res.TokenCount)
	jc.Succeed("done", res)
	return nil
}
