package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/knowledge-indexer/internal/data/repos/jobs"
	"github.com/yungbote/knowledge-indexer/internal/data/repos/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type KnowledgeRepo = knowledge.KnowledgeRepo
type DocumentRepo = knowledge.DocumentRepo
type SegmentStore = knowledge.SegmentStore

type JobRunRepo = jobs.JobRunRepo

func NewKnowledgeRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeRepo {
	return knowledge.NewKnowledgeRepo(db, baseLog)
}
func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return knowledge.NewDocumentRepo(db, baseLog)
}
func NewSegmentStore(db *gorm.DB, baseLog *logger.Logger, opts ...knowledge.SegmentStoreOption) SegmentStore {
	return knowledge.NewSegmentStore(db, baseLog, opts...)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
