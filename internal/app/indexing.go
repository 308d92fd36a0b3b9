package app

import (
	"context"
	"fmt"

	"github.com/yungbote/knowledge-indexer/internal/indexing/embedder"
	"github.com/yungbote/knowledge-indexer/internal/indexing/extractor"
	"github.com/yungbote/knowledge-indexer/internal/indexing/profile"
	"github.com/yungbote/knowledge-indexer/internal/indexing/runner"
	"github.com/yungbote/knowledge-indexer/internal/observability"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/envutil"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// Indexing holds what every indexing run shares: the extractor dispatch, the
// profile and the runner collaborators.
type Indexing struct {
	Formats    *extractor.Formats
	Profile    *profile.Profile
	Dispatcher *extractor.Dispatcher
	Deps       runner.Deps
	Options    []runner.Option
}

func buildFormats(cfg Config, clients Clients) *extractor.Formats {
	formats := extractor.NewFormats(
		extractor.NewTextExtractor(),
		extractor.NewDocconvExtractor(cfg.DocconvReadability),
	)
	if clients.DocumentAI != nil {
		formats.Register(extractor.NewDocumentAIExtractor(clients.DocumentAI))
	}
	if clients.Vision != nil {
		formats.Register(extractor.NewVisionExtractor(clients.Vision))
	}
	if clients.Speech != nil {
		formats.Register(extractor.NewSpeechExtractor(clients.Speech))
	}
	return formats
}

func wireIndexing(log *logger.Logger, cfg Config, clients Clients, repos Repos, metrics *observability.Metrics) (Indexing, error) {
	log.Info("Wiring indexing...")
	formats := buildFormats(cfg, clients)
	prof, err := profile.Load(log, formats.Known)
	if err != nil {
		return Indexing{}, fmt.Errorf("load indexing profile: %w", err)
	}
	log.Info("indexing profile loaded", "extractors", formats.Names())

	dispatcher := extractor.NewDispatcher(log, clients.Blob, prof, formats,
		extractor.WithScratchDir(cfg.ScratchDir),
		extractor.WithConnectors(
			extractor.NewNotionConnector(log, clients.Vault),
			extractor.NewGoogleDriveConnector(log, clients.Vault),
			extractor.NewOneDriveConnector(log, clients.Vault),
			extractor.NewConfluenceConnector(log, clients.Vault),
		),
	)

	deps := runner.Deps{
		Documents: repos.Documents,
		Segments:  repos.Segments,
		Extractor: dispatcher,
		Profile:   prof,
		Sink:      clients.Vector,
		Embedders: embedder.NewFactory(clients.Vault, clients.Integration, log),
		Log:       log,
		Metrics:   metrics,
	}
	if clients.Status != nil {
		deps.Status = clients.Status
	}

	var opts []runner.Option
	if n := envutil.Int("INDEXING_BATCH_SIZE", 0); n > 0 {
		opts = append(opts, runner.WithBatchSize(n))
	}
	if t := envutil.String("INDEXING_TECHNIQUE", ""); t != "" {
		opts = append(opts, runner.WithTechnique(t))
	}

	return Indexing{
		Formats:    formats,
		Profile:    prof,
		Dispatcher: dispatcher,
		Deps:       deps,
		Options:    opts,
	}, nil
}

// IndexDocument runs one document inline, bypassing the job queue.
func (a *App) IndexDocument(ctx context.Context, knowledgeID, documentID uint64) (runner.Result, error) {
	dbc := dbctx.New(ctx)
	k, err := a.Repos.Knowledge.GetWithOptions(dbc, knowledgeID)
	if err != nil {
		return runner.Result{}, err
	}
	if k == nil {
		return runner.Result{}, fmt.Errorf("knowledge %d not found", knowledgeID)
	}
	doc, err := a.Repos.Documents.GetForKnowledge(dbc, knowledgeID, documentID)
	if err != nil {
		return runner.Result{}, err
	}
	if doc == nil {
		return runner.Result{}, fmt.Errorf("knowledge document %d not found", documentID)
	}
	r, err := runner.New(a.Indexing.Deps, k, doc, a.Indexing.Options...)
	if err != nil {
		return runner.Result{}, err
	}
	return r.Run(ctx), nil
}
