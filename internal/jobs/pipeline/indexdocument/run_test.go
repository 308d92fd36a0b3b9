package indexdocument

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"gorm.io/datatypes"

	jobrepo "github.com/yungbote/knowledge-indexer/internal/data/repos/jobs"
	knowledgerepo "github.com/yungbote/knowledge-indexer/internal/data/repos/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/data/repos/testutil"
	types "github.com/yungbote/knowledge-indexer/internal/domain/jobs"
	knowledge "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
	"github.com/yungbote/knowledge-indexer/internal/indexing/embedder"
	"github.com/yungbote/knowledge-indexer/internal/indexing/profile"
	"github.com/yungbote/knowledge-indexer/internal/indexing/runner"
	jobrt "github.com/yungbote/knowledge-indexer/internal/jobs/runtime"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
)

type staticExtractor struct{ blocks []string }

func (e staticExtractor) Extract(context.Context, *knowledge.KnowledgeDocument) ([]chunk.Chunk, error) {
	out := make([]chunk.Chunk, 0, len(e.blocks))
	for _, b := range e.blocks {
		out = append(out, chunk.New(b))
	}
	return out, nil
}

type nullSink struct{}

func (nullSink) CreateCollection(context.Context, string, int) error { return nil }
func (nullSink) AddTexts(context.Context, string, []chunk.Chunk, [][]float32) error {
	return nil
}
func (nullSink) TextExists(context.Context, string, string) bool { return false }

type unitEmbedder struct{}

func (unitEmbedder) InvokeTextEmbedding(_ context.Context, texts []string) ([][]float32, int, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, 7 * len(texts), nil
}

type fixture struct {
	jobs     jobrepo.JobRunRepo
	docs     knowledgerepo.DocumentRepo
	pipeline *Pipeline
	k        *knowledge.Knowledge
	doc      *knowledge.KnowledgeDocument
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	k := testutil.SeedKnowledge(t, db, "kb", nil)
	doc := testutil.SeedDocument(t, db, k, knowledge.DocumentSource{Source: knowledge.SourceManual, Type: knowledge.TypeManualFile, CompletePath: "x.txt"})
	prof, err := profile.Parse([]byte("extractors:\n  txt: text\n"), nil)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	docs := knowledgerepo.NewDocumentRepo(db, log)
	deps := runner.Deps{
		Documents: docs,
		Segments:  knowledgerepo.NewSegmentStore(db, log),
		Extractor: staticExtractor{blocks: []string{"one", "two"}},
		Profile:   prof,
		Sink:      nullSink{},
		Embedders: func(*knowledge.Knowledge, *knowledge.KnowledgeDocument) embedder.Embedder { return unitEmbedder{} },
		Log:       log,
	}
	return &fixture{
		jobs:     jobrepo.NewJobRunRepo(db, log),
		docs:     docs,
		pipeline: New(log, docs, knowledgerepo.NewKnowledgeRepo(db, log), deps),
		k:        k,
		doc:      doc,
	}
}

func (f *fixture) run(t *testing.T, payload map[string]any) *types.JobRun {
	t.Helper()
	raw, _ := json.Marshal(payload)
	job := &types.JobRun{
		OrganizationID: f.k.OrganizationID,
		ProjectID:      f.k.ProjectID,
		JobType:        types.JobTypeIndexKnowledgeDocument,
		Status:         types.StatusRunning,
		Stage:          "running",
		Payload:        datatypes.JSON(raw),
	}
	dbc := dbctx.New(context.Background())
	if _, err := f.jobs.Create(dbc, []*types.JobRun{job}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := f.pipeline.Run(jobrt.NewContext(context.Background(), job, f.jobs, nil)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	got, err := f.jobs.GetByID(dbc, job.ID)
	if err != nil || got == nil {
		t.Fatalf("reload job: %v", err)
	}
	return got
}

func (f *fixture) payload() map[string]any {
	return map[string]any{
		"organization_id":       f.k.OrganizationID,
		"project_id":            f.k.ProjectID,
		"knowledge_id":          f.k.ID,
		"knowledge_document_id": f.doc.ID,
	}
}

func TestRunIndexesDocument(t *testing.T) {
	f := newFixture(t)
	job := f.run(t, f.payload())

	if job.Status != types.StatusSucceeded {
		t.Fatalf("job status: want=succeeded got=%s (%s)", job.Status, job.Error)
	}
	var res runner.Result
	if err := json.Unmarshal(job.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Status != knowledge.IndexStatusCompleted || res.TokenCount != 14 {
		t.Fatalf("result: want=completed/14 got=%s/%d", res.Status, res.TokenCount)
	}
	doc, _ := f.docs.GetByID(dbctx.New(context.Background()), f.doc.ID)
	if doc.IndexStatus != knowledge.IndexStatusCompleted {
		t.Fatalf("document status: want=completed got=%s", doc.IndexStatus)
	}
}

func TestRunValidatesPayloadInOrder(t *testing.T) {
	for i, field := range requiredFields {
		t.Run(field, func(t *testing.T) {
			f := newFixture(t)
			p := f.payload()
			for _, later := range requiredFields[i:] {
				delete(p, later)
			}
			job := f.run(t, p)
			want := (&jobrt.MissingFieldError{Field: field}).Error()
			if job.Status != types.StatusFailed || job.Error != want {
				t.Fatalf("want failed/%q got %s/%q", want, job.Status, job.Error)
			}
		})
	}
}

func TestRunDocumentNotFound(t *testing.T) {
	f := newFixture(t)
	p := f.payload()
	p["knowledge_document_id"] = f.doc.ID + 100
	job := f.run(t, p)

	want := fmt.Sprintf("knowledge document %d not found", f.doc.ID+100)
	if job.Status != types.StatusFailed || job.Error != want {
		t.Fatalf("want failed/%q got %s/%q", want, job.Status, job.Error)
	}
}

func TestRunKnowledgeScopedToProject(t *testing.T) {
	f := newFixture(t)
	p := f.payload()
	p["project_id"] = f.k.ProjectID + 1
	job := f.run(t, p)

	if job.Status != types.StatusFailed || job.Stage != "load" {
		t.Fatalf("want failed/load got %s/%s", job.Status, job.Stage)
	}
}
