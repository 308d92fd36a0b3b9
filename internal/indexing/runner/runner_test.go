package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/knowledge-indexer/internal/clients/redis"
	knowledgerepo "github.com/yungbote/knowledge-indexer/internal/data/repos/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/data/repos/testutil"
	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
	"github.com/yungbote/knowledge-indexer/internal/indexing/embedder"
	"github.com/yungbote/knowledge-indexer/internal/indexing/profile"
	"github.com/yungbote/knowledge-indexer/internal/indexing/vector"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type fakeExtractor struct {
	blocks []string
	err    error
	panic  bool
	during func()
}

func (f *fakeExtractor) Extract(context.Context, *types.KnowledgeDocument) ([]chunk.Chunk, error) {
	if f.during != nil {
		f.during()
	}
	if f.panic {
		panic("extractor exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]chunk.Chunk, 0, len(f.blocks))
	for _, b := range f.blocks {
		out = append(out, chunk.New(b))
	}
	return out, nil
}

type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	perCall int
	// tokens overrides perCall for the n-th call when set.
	tokens []int
	dim    int
	err    error
	// failOn limits err to one call, numbered from 1. Zero fails every call.
	failOn    int
	batchSize []int
}

func (f *fakeEmbedder) InvokeTextEmbedding(_ context.Context, texts []string) ([][]float32, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batchSize = append(f.batchSize, len(texts))
	if f.err != nil && (f.failOn == 0 || f.failOn == f.calls) {
		return nil, 0, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(i + 1)
		out[i] = v
	}
	used := f.perCall
	if f.calls <= len(f.tokens) {
		used = f.tokens[f.calls-1]
	}
	return out, used, nil
}

type fakeSink struct {
	mu       sync.Mutex
	created  map[string]int
	creates  int
	added    [][]chunk.Chunk
	failIDs  map[string]bool
	addErr   error
	collLast string
}

func newFakeSink() *fakeSink {
	return &fakeSink{created: map[string]int{}, failIDs: map[string]bool{}}
}

func (s *fakeSink) CreateCollection(_ context.Context, name string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	s.created[name] = dim
	return nil
}

func (s *fakeSink) AddTexts(_ context.Context, name string, chunks []chunk.Chunk, embeddings [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collLast = name
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, chunks)
	var items []vector.ItemError
	for _, c := range chunks {
		if s.failIDs[c.DocumentID()] {
			items = append(items, vector.ItemError{ID: c.DocumentID(), Reason: "rejected"})
		}
	}
	if len(items) > 0 {
		return &vector.IndexingError{Collection: name, Items: items}
	}
	return nil
}

func (s *fakeSink) TextExists(context.Context, string, string) bool { return false }

type fakePublisher struct {
	mu     sync.Mutex
	events []redis.StatusEvent
}

func (p *fakePublisher) Publish(_ context.Context, ev redis.StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Event)
	}
	return out
}

type harness struct {
	db        *gorm.DB
	docs      knowledgerepo.DocumentRepo
	segments  knowledgerepo.SegmentStore
	knowledge *types.Knowledge
	doc       *types.KnowledgeDocument
	extractor *fakeExtractor
	embed     *fakeEmbedder
	sink      *fakeSink
	status    *fakePublisher
	profile   *profile.Profile
}

const passThroughProfile = "extractors:\n  txt: text\n"

func newHarness(t *testing.T, profileYAML string) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	k := testutil.SeedKnowledge(t, db, "KB_Main", map[string]string{types.ModelParamCredentialID: "5"})
	doc := testutil.SeedDocument(t, db, k, types.DocumentSource{Source: types.SourceManual, Type: types.TypeManualFile, CompletePath: "a.txt"})
	prof, err := profile.Parse([]byte(profileYAML), nil)
	require.NoError(t, err)
	return &harness{
		db:        db,
		docs:      knowledgerepo.NewDocumentRepo(db, log),
		segments:  knowledgerepo.NewSegmentStore(db, log),
		knowledge: k,
		doc:       doc,
		extractor: &fakeExtractor{},
		embed:     &fakeEmbedder{dim: 3, perCall: 30},
		sink:      newFakeSink(),
		status:    &fakePublisher{},
		profile:   prof,
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Documents: h.docs,
		Segments:  h.segments,
		Extractor: h.extractor,
		Profile:   h.profile,
		Sink:      h.sink,
		Embedders: func(*types.Knowledge, *types.KnowledgeDocument) embedder.Embedder { return h.embed },
		Status:    h.status,
		Log:       logger.Nop(),
	}
}

func (h *harness) run(t *testing.T, opts ...Option) Result {
	t.Helper()
	r, err := New(h.deps(), h.knowledge, h.doc, opts...)
	require.NoError(t, err)
	return r.Run(context.Background())
}

func (h *harness) reload(t *testing.T) *types.KnowledgeDocument {
	t.Helper()
	doc, err := h.docs.GetByID(dbctx.New(context.Background()), h.doc.ID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc
}

func (h *harness) segmentRows(t *testing.T) []*types.KnowledgeDocumentSegment {
	t.Helper()
	rows, err := h.segments.ListByDocument(dbctx.New(context.Background()), h.doc.ID)
	require.NoError(t, err)
	return rows
}

func TestRunCompletesDocument(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	h.extractor.blocks = []string{"alpha", "beta gamma", "δέλτα"}

	res := h.run(t)
	assert.Equal(t, types.IndexStatusCompleted, res.Status)
	assert.Equal(t, 30, res.TokenCount)

	doc := h.reload(t)
	assert.Equal(t, types.IndexStatusCompleted, doc.IndexStatus)
	assert.Equal(t, 20, doc.WordCount)
	assert.Equal(t, 30, doc.TokenCount)
	assert.Empty(t, doc.Error)
	assert.NotNil(t, doc.ProcessingStartedAt)
	assert.NotNil(t, doc.ParsingCompletedAt)
	assert.NotNil(t, doc.SplittingCompletedAt)
	assert.NotNil(t, doc.CompletedAt)
	assert.GreaterOrEqual(t, doc.IndexingLatency, 0.0)

	rows := h.segmentRows(t)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, types.SegmentStatusCompleted, row.Status)
		assert.True(t, row.Enabled)
		assert.NotNil(t, row.CompletedAt)
	}

	assert.Equal(t, map[string]int{"kb_main": 3}, h.sink.created)
	assert.Equal(t, []string{EventStarted, EventCompleted}, h.status.names())
}

func TestRunStampsChunkMetadata(t *testing.T) {
	h := newHarness(t, passThroughProfile+"transformers:\n  - name: pattern\n")
	h.extractor.blocks = []string{"mail ops@example.com"}

	res := h.run(t)
	require.Equal(t, types.IndexStatusCompleted, res.Status, res.Error)
	require.Len(t, h.sink.added, 1)
	c := h.sink.added[0][0]
	hash := chunk.HashText("mail ops@example.com")
	assert.Equal(t, hash, c.DocumentID())
	assert.Equal(t, hash, c.DocumentHash())
	assert.Equal(t, fmt.Sprint(h.doc.ID), c.String(chunk.KeyKnowledgeDocumentID))
	assert.Equal(t, fmt.Sprint(h.knowledge.ID), c.String(chunk.KeyKnowledgeID))
	assert.Equal(t, "11", c.String(chunk.KeyProjectID))
	assert.Equal(t, "22", c.String(chunk.KeyOrganizationID))
	assert.Equal(t, []string{"ops@example.com"}, c.Entities["EMAIL"])
}

func TestRunBatchesAndAccumulatesTokens(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	for i := 0; i < 60; i++ {
		h.extractor.blocks = append(h.extractor.blocks, fmt.Sprintf("block number %d", i))
	}

	res := h.run(t)
	require.Equal(t, types.IndexStatusCompleted, res.Status, res.Error)
	assert.Equal(t, 60, res.TokenCount)
	assert.Equal(t, []int{50, 10}, h.embed.batchSize)
	assert.Equal(t, 1, h.sink.creates, "collection is created once")
	assert.Equal(t, 60, h.reload(t).TokenCount)
}

func TestRunChunksAndNormalizes(t *testing.T) {
	h := newHarness(t, passThroughProfile+"chunking:\n  technique: sentence\n  encoding: estimate\n  chunk_size: 1\n")
	h.extractor.blocks = []string{"First one. Second one.", "   "}

	res := h.run(t)
	require.Equal(t, types.IndexStatusCompleted, res.Status, res.Error)
	rows := h.segmentRows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "First one.", rows[0].Content)
	assert.Equal(t, "Second one.", rows[1].Content)
}

func TestRunExtractFailure(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	h.extractor.err = errors.New("manual-url is not supported")
	require.NoError(t, h.docs.UpdateFields(dbctx.New(context.Background()), h.doc.ID, map[string]interface{}{"word_count": 42}))

	res := h.run(t)
	assert.Equal(t, types.IndexStatusError, res.Status)

	doc := h.reload(t)
	assert.Equal(t, types.IndexStatusError, doc.IndexStatus)
	assert.Equal(t, "manual-url is not supported", doc.Error)
	assert.NotNil(t, doc.CompletedAt)
	assert.Equal(t, 42, doc.WordCount, "word_count is only written after a successful extract")
	assert.Zero(t, h.sink.creates)
	assert.Equal(t, []string{EventStarted, EventFailed}, h.status.names())
}

func TestRunPausedBeforeStart(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	h.extractor.blocks = []string{"never read"}
	require.NoError(t, h.docs.SetPaused(dbctx.New(context.Background()), h.doc.ID, true))

	res := h.run(t)
	assert.Equal(t, types.IndexStatusError, res.Status)
	doc := h.reload(t)
	assert.Equal(t, (&DocumentPausedError{DocumentID: h.doc.ID}).Error(), doc.Error)
	assert.Zero(t, h.embed.calls)
}

func TestRunPausedBetweenStages(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	h.extractor.blocks = []string{"some text"}
	h.extractor.during = func() {
		_ = h.docs.SetPaused(dbctx.New(context.Background()), h.doc.ID, true)
	}

	res := h.run(t)
	assert.Equal(t, types.IndexStatusError, res.Status)
	assert.Equal(t, (&DocumentPausedError{DocumentID: h.doc.ID}).Error(), res.Error)
	assert.Empty(t, h.segmentRows(t), "no segments are written after a pause")
	assert.Equal(t, 9, h.reload(t).WordCount)
}

func TestRunPartialBatchFailure(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	h.extractor.blocks = []string{"good one", "bad one", "good two"}
	h.sink.failIDs[chunk.HashText("bad one")] = true

	res := h.run(t)
	assert.Equal(t, types.IndexStatusError, res.Status)
	want := &vector.IndexingError{Collection: "kb_main", Items: []vector.ItemError{{ID: chunk.HashText("bad one"), Reason: "rejected"}}}
	assert.Equal(t, want.Error(), res.Error)
	assert.Equal(t, want.Error(), h.reload(t).Error)

	byContent := map[string]string{}
	for _, row := range h.segmentRows(t) {
		byContent[row.Content] = row.Status
	}
	assert.Equal(t, types.SegmentStatusCompleted, byContent["good one"])
	assert.Equal(t, types.SegmentStatusCompleted, byContent["good two"])
	assert.Equal(t, types.SegmentStatusIndexing, byContent["bad one"])
}

func TestRunEmbedderErrorIsRecorded(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	h.extractor.blocks = []string{"x"}
	h.embed.err = embedder.ErrCredentialIDNotFound

	res := h.run(t)
	assert.Equal(t, types.IndexStatusError, res.Status)
	assert.Equal(t, embedder.ErrCredentialIDNotFound.Error(), h.reload(t).Error)
	assert.Zero(t, h.sink.creates)
}

func TestRunRecoversPanics(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	h.extractor.panic = true

	res := h.run(t)
	assert.Equal(t, types.IndexStatusError, res.Status)
	assert.Contains(t, h.reload(t).Error, "extractor exploded")
}

func TestRunWithNoChunksCompletes(t *testing.T) {
	h := newHarness(t, passThroughProfile)

	res := h.run(t)
	assert.Equal(t, types.IndexStatusCompleted, res.Status)
	assert.Zero(t, h.sink.creates)
	assert.Zero(t, h.embed.calls)
}

func TestNewRejectsUnknownTechnique(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	_, err := New(h.deps(), h.knowledge, h.doc, WithTechnique("qa"))
	require.Error(t, err)

	_, err = New(Deps{}, h.knowledge, h.doc)
	require.Error(t, err)
}

func TestWithBatchSize(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	h.extractor.blocks = []string{"a", "b", "c"}
	res := h.run(t, WithBatchSize(2))
	require.Equal(t, types.IndexStatusCompleted, res.Status, res.Error)
	assert.Equal(t, []int{2, 1}, h.embed.batchSize)
	assert.Equal(t, 60, res.TokenCount)
}

func numberedBlocks(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("block number %d", i))
	}
	return out
}

func TestRunIndexesAllBatches(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	h.extractor.blocks = numberedBlocks(120)

	res := h.run(t)
	require.Equal(t, types.IndexStatusCompleted, res.Status, res.Error)
	assert.Equal(t, []int{50, 50, 20}, h.embed.batchSize)
	assert.Equal(t, 120, res.Segments)

	rows := h.segmentRows(t)
	require.Len(t, rows, 120)
	for _, row := range rows {
		assert.Equal(t, types.SegmentStatusCompleted, row.Status)
		assert.True(t, row.Enabled)
	}
}

func TestRunSumsTokensAcrossBatches(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	h.extractor.blocks = numberedBlocks(120)
	h.embed.tokens = []int{10, 20, 30}

	res := h.run(t)
	require.Equal(t, types.IndexStatusCompleted, res.Status, res.Error)
	assert.Equal(t, 60, res.TokenCount)
	assert.Equal(t, 60, h.reload(t).TokenCount)
}

func TestRunEmbedderFailsMidway(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	h.extractor.blocks = numberedBlocks(120)
	h.embed.err = errors.New("provider down")
	h.embed.failOn = 2

	res := h.run(t)
	assert.Equal(t, types.IndexStatusError, res.Status)
	assert.Equal(t, "provider down", res.Error)

	doc := h.reload(t)
	assert.Equal(t, types.IndexStatusError, doc.IndexStatus)
	assert.Equal(t, "provider down", doc.Error)
	assert.Equal(t, 2, h.embed.calls, "no batch runs after the failed one")

	rows := h.segmentRows(t)
	require.Len(t, rows, 120)
	for i, row := range rows {
		if i < 50 {
			assert.Equal(t, types.SegmentStatusCompleted, row.Status, "segment %d", i)
			assert.True(t, row.Enabled)
			continue
		}
		assert.Equal(t, types.SegmentStatusIndexing, row.Status, "segment %d", i)
		assert.False(t, row.Enabled)
	}
}

func TestRunTwiceKeepsSegments(t *testing.T) {
	h := newHarness(t, passThroughProfile)
	h.extractor.blocks = []string{"one", "two", "three"}

	require.Equal(t, types.IndexStatusCompleted, h.run(t).Status)
	first := h.segmentRows(t)

	res := h.run(t)
	require.Equal(t, types.IndexStatusCompleted, res.Status, res.Error)
	second := h.segmentRows(t)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Position, second[i].Position)
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, types.SegmentStatusCompleted, second[i].Status)
	}
}

func TestRunPreStageEntitiesReachChunks(t *testing.T) {
	h := newHarness(t, passThroughProfile+
		"chunking:\n  technique: sentence\n  encoding: estimate\n  chunk_size: 1\n"+
		"transformers:\n  - name: pattern\n    stage: pre\n")
	h.extractor.blocks = []string{"Call 555-123-4567 today! Second sentence here."}

	res := h.run(t)
	require.Equal(t, types.IndexStatusCompleted, res.Status, res.Error)
	require.Len(t, h.sink.added, 1)
	require.Len(t, h.sink.added[0], 2)
	for _, c := range h.sink.added[0] {
		assert.Equal(t, []string{"555-123-4567"}, c.Entities["PHONE"], c.Content)
	}
}
