package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/knowledge-indexer/internal/data/repos"
	knowledgerepo "github.com/yungbote/knowledge-indexer/internal/data/repos/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/indexing/tokens"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type Repos struct {
	Knowledge repos.KnowledgeRepo
	Documents repos.DocumentRepo
	Segments  repos.SegmentStore
	JobRuns   repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients) Repos {
	log.Info("Wiring repos...")
	segOpts := []knowledgerepo.SegmentStoreOption{knowledgerepo.WithLocker(clients.Locker)}
	if cfg.TokenEncoding != "" {
		segOpts = append(segOpts, knowledgerepo.WithTokenCounter(tokens.Tiktoken(cfg.TokenEncoding)))
	}
	return Repos{
		Knowledge: repos.NewKnowledgeRepo(db, log),
		Documents: repos.NewDocumentRepo(db, log),
		Segments:  repos.NewSegmentStore(db, log, segOpts...),
		JobRuns:   repos.NewJobRunRepo(db, log),
	}
}
