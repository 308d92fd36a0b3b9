package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
	"github.com/yungbote/knowledge-indexer/internal/indexing/chunker"
	"github.com/yungbote/knowledge-indexer/internal/indexing/tokens"
	"github.com/yungbote/knowledge-indexer/internal/indexing/transformer"
	"github.com/yungbote/knowledge-indexer/internal/indexing/vector"
	"github.com/yungbote/knowledge-indexer/internal/observability"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"

	"go.opentelemetry.io/otel/attribute"
)

type extractResult struct {
	Blocks []chunk.Chunk
	// WordCount is the number of characters across all blocks.
	WordCount int
}

type transformResult struct {
	Chunks []chunk.Chunk
}

type loadResult struct {
	Tokens   int
	Segments int
	Batches  int
	Elapsed  time.Duration
}

// stageError carries where a failure happened for logs and spans. Its
// message is the underlying error's, so the document records it unchanged.
type stageError struct {
	op    string
	batch int
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func opError(op string, err error) error {
	return &stageError{op: op, err: err}
}

func batchError(op string, batch int, err error) error {
	return &stageError{op: op, batch: batch, err: err}
}

func (r *Runner) extract(ctx context.Context) (extractResult, error) {
	blocks, err := r.deps.Extractor.Extract(ctx, r.doc)
	if err != nil {
		return extractResult{}, opError("extract", err)
	}
	words := 0
	for _, b := range blocks {
		words += tokens.Chars(b.Content)
	}
	r.log.Debug("extracted", "blocks", len(blocks), "word_count", words)
	return extractResult{Blocks: blocks, WordCount: words}, nil
}

// encoder lets the semantic chunker embed sentences with this run's model.
func (r *Runner) encoder() chunker.Encoder {
	return chunker.EncoderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		vecs, _, err := r.embed.InvokeTextEmbedding(ctx, texts)
		return vecs, err
	})
}

func (r *Runner) transform(ctx context.Context, in extractResult) (transformResult, error) {
	prof := r.deps.Profile
	blocks, err := prof.Chain().Apply(ctx, transformer.StagePre, in.Blocks)
	if err != nil {
		return transformResult{}, opError("pre transform", err)
	}

	var nodes []chunk.Chunk
	if prof.Chunking.Technique == "" {
		nodes = blocks
	} else {
		ck, err := prof.NewChunker(r.encoder())
		if err != nil {
			return transformResult{}, opError("chunker", err)
		}
		split, err := ck.Chunk(ctx, chunk.Texts(blocks))
		if err != nil {
			return transformResult{}, opError("chunk", err)
		}
		// Pieces inherit the metadata and entities of the block they came from.
		for i, parts := range split {
			for _, text := range chunker.Normalize(parts) {
				c := blocks[i].Clone()
				c.Content = text
				nodes = append(nodes, c)
			}
		}
	}

	out := make([]chunk.Chunk, 0, len(nodes))
	for _, n := range nodes {
		c := n.Clone()
		hash := chunk.HashText(c.Content)
		c.Set(chunk.KeyDocHash, hash)
		c.Set(chunk.KeyDocumentID, hash)
		c.Set(chunk.KeyKnowledgeDocumentID, r.doc.ID)
		c.Set(chunk.KeyKnowledgeID, r.doc.KnowledgeID)
		c.Set(chunk.KeyProjectID, r.doc.ProjectID)
		c.Set(chunk.KeyOrganizationID, r.doc.OrganizationID)
		out = append(out, c)
	}

	out, err = prof.Chain().Apply(ctx, transformer.StagePost, out)
	if err != nil {
		return transformResult{}, opError("post transform", err)
	}
	r.log.Debug("transformed", "chunks", len(out), "chunking", prof.Chunking.Technique)
	return transformResult{Chunks: out}, nil
}

func (r *Runner) load(ctx context.Context, in transformResult) (loadResult, error) {
	start := time.Now()
	res := loadResult{Segments: len(in.Chunks)}
	dbc := dbctx.New(ctx)

	if _, err := r.deps.Segments.AddDocuments(dbc, r.knowledge, r.doc, in.Chunks); err != nil {
		return res, opError("store segments", err)
	}
	now := r.deps.now()
	r.setStatus(ctx, map[string]interface{}{
		"index_status":           types.IndexStatusIndexing,
		"cleaning_completed_at":  now,
		"splitting_completed_at": now,
	})
	if err := r.deps.Segments.MarkDocumentSegmentsIndexing(dbc, r.doc.ID, now); err != nil {
		return res, opError("mark segments indexing", err)
	}

	collection := vector.CollectionName(r.knowledge.CollectionName())
	created := false
	// Batches are numbered from 1.
	for i := 0; i < len(in.Chunks); i += r.batchSize {
		end := i + r.batchSize
		if end > len(in.Chunks) {
			end = len(in.Chunks)
		}
		if err := r.checkPaused(ctx); err != nil {
			return res, err
		}
		n, err := r.loadBatch(ctx, collection, &created, in.Chunks[i:end], res.Batches+1)
		if err != nil {
			return res, err
		}
		res.Tokens += n
		res.Batches++
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func (r *Runner) loadBatch(ctx context.Context, collection string, created *bool, batch []chunk.Chunk, index int) (tokensUsed int, err error) {
	ctx, span := observability.StartSpan(ctx, "indexing.load.batch",
		attribute.Int("batch", index),
		attribute.Int("size", len(batch)),
	)
	defer func() { observability.EndSpan(span, err) }()

	embeddings, tokensUsed, err := r.embed.InvokeTextEmbedding(ctx, chunk.Texts(batch))
	if err != nil {
		return 0, batchError("embed", index, err)
	}
	if len(embeddings) != len(batch) {
		return 0, batchError("embed", index, fmt.Errorf("embedding count mismatch: want %d got %d", len(batch), len(embeddings)))
	}
	if !*created {
		if err := r.deps.Sink.CreateCollection(ctx, collection, len(embeddings[0])); err != nil {
			return 0, batchError("create collection "+collection, index, err)
		}
		*created = true
	}

	addErr := r.deps.Sink.AddTexts(ctx, collection, batch, embeddings)
	var partial *vector.IndexingError
	if addErr != nil && !errors.As(addErr, &partial) {
		return 0, batchError("add texts", index, addErr)
	}

	failed := map[string]bool{}
	if partial != nil {
		for _, it := range partial.Items {
			failed[it.ID] = true
		}
	}
	ids := make([]string, 0, len(batch))
	for _, c := range batch {
		id := c.DocumentID()
		if !failed[id] {
			ids = append(ids, id)
		}
	}
	if err := r.deps.Segments.CompleteSegments(dbctx.New(ctx), r.knowledge.ID, ids, r.deps.now()); err != nil {
		return 0, batchError("complete segments", index, err)
	}
	if partial != nil {
		return 0, batchError("add texts", index, partial)
	}
	return tokensUsed, nil
}
