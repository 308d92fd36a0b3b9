package services

import (
	"fmt"

	knowledgerepo "github.com/yungbote/knowledge-indexer/internal/data/repos/knowledge"
	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/pkg/ctxutil"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type DocumentService interface {
	Get(dbc dbctx.Context, p *ctxutil.Principal, knowledgeID, documentID uint64) (*types.KnowledgeDocument, error)
	SetPaused(dbc dbctx.Context, p *ctxutil.Principal, knowledgeID, documentID uint64, paused bool) (*types.KnowledgeDocument, error)
	SegmentCount(dbc dbctx.Context, documentID uint64) (int64, error)
}

type documentService struct {
	log      *logger.Logger
	docs     knowledgerepo.DocumentRepo
	segments knowledgerepo.SegmentStore
}

func NewDocumentService(baseLog *logger.Logger, docs knowledgerepo.DocumentRepo, segments knowledgerepo.SegmentStore) DocumentService {
	return &documentService{
		log:      baseLog.With("service", "DocumentService"),
		docs:     docs,
		segments: segments,
	}
}

// Get returns the document when it belongs to the principal's project and
// organization. Foreign documents read as ErrNotFound.
func (s *documentService) Get(dbc dbctx.Context, p *ctxutil.Principal, knowledgeID, documentID uint64) (*types.KnowledgeDocument, error) {
	if p == nil {
		return nil, ErrUnauthorized
	}
	doc, err := s.docs.GetForKnowledge(dbc, knowledgeID, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.ProjectID != p.ProjectID || doc.OrganizationID != p.OrganizationID {
		return nil, fmt.Errorf("knowledge document %d: %w", documentID, ErrNotFound)
	}
	return doc, nil
}

func (s *documentService) SetPaused(dbc dbctx.Context, p *ctxutil.Principal, knowledgeID, documentID uint64, paused bool) (*types.KnowledgeDocument, error) {
	if _, err := s.Get(dbc, p, knowledgeID, documentID); err != nil {
		return nil, err
	}
	if err := s.docs.SetPaused(dbc, documentID, paused); err != nil {
		return nil, err
	}
	s.log.Info("document pause flag changed", "knowledge_document_id", documentID, "paused", paused)
	return s.docs.GetByID(dbc, documentID)
}

func (s *documentService) SegmentCount(dbc dbctx.Context, documentID uint64) (int64, error) {
	return s.segments.CountByDocument(dbc, documentID)
}
