package knowledge

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.KnowledgeDocument) error
	// GetByID returns (nil, nil) when the document does not exist.
	GetByID(dbc dbctx.Context, id uint64) (*types.KnowledgeDocument, error)
	GetForKnowledge(dbc dbctx.Context, knowledgeID, id uint64) (*types.KnowledgeDocument, error)
	UpdateFields(dbc dbctx.Context, id uint64, updates map[string]interface{}) error
	IsPaused(dbc dbctx.Context, id uint64) (bool, error)
	SetPaused(dbc dbctx.Context, id uint64, paused bool) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "KnowledgeDocumentRepo")}
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.KnowledgeDocument) error {
	return dbc.Conn(r.db).Create(doc).Error
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uint64) (*types.KnowledgeDocument, error) {
	return r.first(dbc, "id = ?", id)
}

func (r *documentRepo) GetForKnowledge(dbc dbctx.Context, knowledgeID, id uint64) (*types.KnowledgeDocument, error) {
	return r.first(dbc, "id = ? AND knowledge_id = ?", id, knowledgeID)
}

func (r *documentRepo) first(dbc dbctx.Context, query string, args ...interface{}) (*types.KnowledgeDocument, error) {
	var rows []types.KnowledgeDocument
	if err := dbc.Conn(r.db).Where(query, args...).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *documentRepo) UpdateFields(dbc dbctx.Context, id uint64, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Conn(r.db).
		Model(&types.KnowledgeDocument{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *documentRepo) IsPaused(dbc dbctx.Context, id uint64) (bool, error) {
	var paused []bool
	err := dbc.Conn(r.db).
		Model(&types.KnowledgeDocument{}).
		Where("id = ?", id).
		Limit(1).
		Pluck("is_paused", &paused).Error
	if err != nil {
		return false, err
	}
	return len(paused) > 0 && paused[0], nil
}

func (r *documentRepo) SetPaused(dbc dbctx.Context, id uint64, paused bool) error {
	updates := map[string]interface{}{"is_paused": paused, "paused_at": nil}
	if paused {
		updates["paused_at"] = time.Now()
	}
	return r.UpdateFields(dbc, id, updates)
}
