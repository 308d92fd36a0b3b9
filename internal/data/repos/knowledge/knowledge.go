package knowledge

import (
	"gorm.io/gorm"

	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type KnowledgeRepo interface {
	Create(dbc dbctx.Context, k *types.Knowledge) error
	// GetWithOptions loads a knowledge row with its embedding options. A
	// missing row yields (nil, nil).
	GetWithOptions(dbc dbctx.Context, id uint64) (*types.Knowledge, error)
}

type knowledgeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeRepo {
	return &knowledgeRepo{db: db, log: baseLog.With("repo", "KnowledgeRepo")}
}

func (r *knowledgeRepo) Create(dbc dbctx.Context, k *types.Knowledge) error {
	return dbc.Conn(r.db).Create(k).Error
}

func (r *knowledgeRepo) GetWithOptions(dbc dbctx.Context, id uint64) (*types.Knowledge, error) {
	if id == 0 {
		return nil, nil
	}
	var rows []types.Knowledge
	err := dbc.Conn(r.db).
		Preload("EmbeddingModelOptions", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
