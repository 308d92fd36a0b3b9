package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/knowledge-indexer/internal/domain/jobs"
	"github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Knowledge catalogue
		&knowledge.Knowledge{},
		&knowledge.KnowledgeEmbeddingModelOption{},
		&knowledge.KnowledgeDocument{},
		&knowledge.KnowledgeDocumentSegment{},

		// Job queue
		&jobs.JobRun{},
	)
}
