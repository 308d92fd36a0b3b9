package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
	"github.com/yungbote/knowledge-indexer/internal/indexing/tokens"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/pkg/keylock"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// SegmentStore persists chunks as document segments keyed by
// (knowledge_id, index_node_id).
type SegmentStore interface {
	// AddDocuments inserts new segments after the document's current max
	// position and updates existing ones in place. The whole batch commits in
	// one transaction while holding the document lock.
	AddDocuments(dbc dbctx.Context, k *types.Knowledge, doc *types.KnowledgeDocument, chunks []chunk.Chunk) (AddResult, error)
	GetDocumentSegment(dbc dbctx.Context, knowledgeID uint64, indexNodeID string) (*types.KnowledgeDocumentSegment, error)
	MarkDocumentSegmentsIndexing(dbc dbctx.Context, documentID uint64, at time.Time) error
	CompleteSegments(dbc dbctx.Context, knowledgeID uint64, indexNodeIDs []string, at time.Time) error
	CountByDocument(dbc dbctx.Context, documentID uint64) (int64, error)
	ListByDocument(dbc dbctx.Context, documentID uint64) ([]*types.KnowledgeDocumentSegment, error)
}

type AddResult struct {
	Inserted int
	Updated  int
}

type segmentStore struct {
	db     *gorm.DB
	log    *logger.Logger
	locks  keylock.Locker
	tokens tokens.Counter
}

type SegmentStoreOption func(*segmentStore)

func WithLocker(l keylock.Locker) SegmentStoreOption {
	return func(s *segmentStore) { s.locks = l }
}

func WithTokenCounter(c tokens.Counter) SegmentStoreOption {
	return func(s *segmentStore) { s.tokens = c }
}

func NewSegmentStore(db *gorm.DB, baseLog *logger.Logger, opts ...SegmentStoreOption) SegmentStore {
	s := &segmentStore{
		db:     db,
		log:    baseLog.With("repo", "SegmentStore"),
		locks:  keylock.NewLocal(),
		tokens: tokens.Estimate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookupBatch bounds the IN list when resolving existing node ids.
const lookupBatch = 500

func (s *segmentStore) AddDocuments(dbc dbctx.Context, k *types.Knowledge, doc *types.KnowledgeDocument, chunks []chunk.Chunk) (AddResult, error) {
	var res AddResult
	if len(chunks) == 0 {
		return res, nil
	}

	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	release, err := s.locks.Lock(ctx, fmt.Sprintf("knowledge_document:%d", doc.ID))
	if err != nil {
		return res, fmt.Errorf("lock document %d: %w", doc.ID, err)
	}
	defer release()

	err = dbc.Conn(s.db).Transaction(func(tx *gorm.DB) error {
		var maxPos int
		if err := tx.Model(&types.KnowledgeDocumentSegment{}).
			Where("knowledge_document_id = ?", doc.ID).
			Select("COALESCE(MAX(position), 0)").
			Scan(&maxPos).Error; err != nil {
			return fmt.Errorf("max position: %w", err)
		}

		nodeIDs := make([]string, 0, len(chunks))
		for _, c := range chunks {
			nodeIDs = append(nodeIDs, c.DocumentID())
		}
		existing, err := s.loadExisting(tx, k.ID, nodeIDs)
		if err != nil {
			return err
		}

		var inserts []*types.KnowledgeDocumentSegment
		for i := range chunks {
			c := chunks[i].Clone()
			nodeID := c.DocumentID()
			if nodeID == "" {
				return fmt.Errorf("chunk %d has no %s", i, chunk.KeyDocumentID)
			}
			content := stripNUL(c.Content)
			answer := stripNUL(c.PopAnswer())

			if seg, ok := existing[nodeID]; ok {
				seg.Content = content
				seg.IndexNodeHash = c.DocumentHash()
				seg.WordCount = tokens.Words(content)
				seg.TokenCount = s.tokens(content)
				if answer != "" {
					seg.Answer = answer
				}
				if seg.ID == 0 {
					// Duplicate text earlier in this same batch, not yet written.
					continue
				}
				if err := tx.Model(&types.KnowledgeDocumentSegment{}).
					Where("id = ?", seg.ID).
					Updates(map[string]interface{}{
						"content":         seg.Content,
						"index_node_hash": seg.IndexNodeHash,
						"word_count":      seg.WordCount,
						"token_count":     seg.TokenCount,
						"answer":          seg.Answer,
						"updated_at":      time.Now(),
					}).Error; err != nil {
					return fmt.Errorf("update segment %d: %w", seg.ID, err)
				}
				res.Updated++
				continue
			}

			maxPos++
			seg := &types.KnowledgeDocumentSegment{
				KnowledgeID:         k.ID,
				KnowledgeDocumentID: doc.ID,
				Position:            maxPos,
				Content:             content,
				Answer:              answer,
				WordCount:           tokens.Words(content),
				TokenCount:          s.tokens(content),
				IndexNodeID:         nodeID,
				IndexNodeHash:       c.DocumentHash(),
				Enabled:             false,
				Status:              types.SegmentStatusWaiting,
				CreatedBy:           doc.CreatedBy,
				UpdatedBy:           doc.CreatedBy,
			}
			existing[nodeID] = seg
			inserts = append(inserts, seg)
		}

		if len(inserts) > 0 {
			if err := tx.CreateInBatches(inserts, 100).Error; err != nil {
				return fmt.Errorf("insert segments: %w", err)
			}
			res.Inserted = len(inserts)
		}
		return nil
	})
	if err != nil {
		return AddResult{}, err
	}

	s.log.Debug("segments stored",
		"knowledge_id", k.ID,
		"knowledge_document_id", doc.ID,
		"inserted", res.Inserted,
		"updated", res.Updated,
	)
	return res, nil
}

func (s *segmentStore) loadExisting(tx *gorm.DB, knowledgeID uint64, nodeIDs []string) (map[string]*types.KnowledgeDocumentSegment, error) {
	out := make(map[string]*types.KnowledgeDocumentSegment, len(nodeIDs))
	for start := 0; start < len(nodeIDs); start += lookupBatch {
		end := start + lookupBatch
		if end > len(nodeIDs) {
			end = len(nodeIDs)
		}
		var rows []*types.KnowledgeDocumentSegment
		if err := tx.Where("knowledge_id = ? AND index_node_id IN ?", knowledgeID, nodeIDs[start:end]).
			Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load existing segments: %w", err)
		}
		for _, row := range rows {
			out[row.IndexNodeID] = row
		}
	}
	return out, nil
}

func (s *segmentStore) GetDocumentSegment(dbc dbctx.Context, knowledgeID uint64, indexNodeID string) (*types.KnowledgeDocumentSegment, error) {
	var rows []*types.KnowledgeDocumentSegment
	if err := dbc.Conn(s.db).
		Where("knowledge_id = ? AND index_node_id = ?", knowledgeID, indexNodeID).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *segmentStore) MarkDocumentSegmentsIndexing(dbc dbctx.Context, documentID uint64, at time.Time) error {
	return dbc.Conn(s.db).
		Model(&types.KnowledgeDocumentSegment{}).
		Where("knowledge_document_id = ?", documentID).
		Updates(map[string]interface{}{
			"status":      types.SegmentStatusIndexing,
			"indexing_at": at,
			"updated_at":  at,
		}).Error
}

func (s *segmentStore) CompleteSegments(dbc dbctx.Context, knowledgeID uint64, indexNodeIDs []string, at time.Time) error {
	if len(indexNodeIDs) == 0 {
		return nil
	}
	return dbc.Conn(s.db).
		Model(&types.KnowledgeDocumentSegment{}).
		Where("knowledge_id = ? AND index_node_id IN ?", knowledgeID, indexNodeIDs).
		Updates(map[string]interface{}{
			"status":       types.SegmentStatusCompleted,
			"enabled":      true,
			"completed_at": at,
			"updated_at":   at,
		}).Error
}

func (s *segmentStore) CountByDocument(dbc dbctx.Context, documentID uint64) (int64, error) {
	var n int64
	err := dbc.Conn(s.db).
		Model(&types.KnowledgeDocumentSegment{}).
		Where("knowledge_document_id = ?", documentID).
		Count(&n).Error
	return n, err
}

func (s *segmentStore) ListByDocument(dbc dbctx.Context, documentID uint64) ([]*types.KnowledgeDocumentSegment, error) {
	var rows []*types.KnowledgeDocumentSegment
	err := dbc.Conn(s.db).
		Where("knowledge_document_id = ?", documentID).
		Order("position ASC").
		Find(&rows).Error
	return rows, err
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
