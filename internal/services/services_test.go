package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"

	jobrepo "github.com/yungbote/knowledge-indexer/internal/data/repos/jobs"
	knowledgerepo "github.com/yungbote/knowledge-indexer/internal/data/repos/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/data/repos/testutil"
	types "github.com/yungbote/knowledge-indexer/internal/domain/jobs"
	knowledge "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/pkg/ctxutil"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
)

func TestAuthTokenRoundTrip(t *testing.T) {
	auth := NewAuthService(testutil.Logger(t), "s3cret", "")
	tok, err := auth.IssueToken(ctxutil.Principal{Subject: "web", ProjectID: 11, OrganizationID: 22}, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	p, err := auth.Authenticate(Credentials{Bearer: tok})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.ProjectID != 11 || p.OrganizationID != 22 || p.Subject != "web" {
		t.Fatalf("principal: got=%+v", p)
	}
}

func TestAuthRejectsBadTokens(t *testing.T) {
	auth := NewAuthService(testutil.Logger(t), "s3cret", "")
	other := NewAuthService(testutil.Logger(t), "other", "")
	foreign, _ := other.IssueToken(ctxutil.Principal{ProjectID: 1, OrganizationID: 1}, time.Minute)
	expired, _ := auth.IssueToken(ctxutil.Principal{ProjectID: 1, OrganizationID: 1}, -time.Minute)
	unscoped, _ := auth.IssueToken(ctxutil.Principal{}, time.Minute)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, ServiceClaims{ProjectID: 1, OrganizationID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"foreign":  foreign,
		"expired":  expired,
		"unscoped": unscoped,
		"none alg": none,
		"garbage":  "abc",
	} {
		if _, err := auth.Authenticate(Credentials{Bearer: tok}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: want ErrUnauthorized got=%v", name, err)
		}
	}
}

func TestAuthServiceKey(t *testing.T) {
	auth := NewAuthService(testutil.Logger(t), "", "internal-key")

	p, err := auth.Authenticate(Credentials{ServiceKey: "internal-key", ProjectID: "5", OrganizationID: "6"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.ProjectID != 5 || p.OrganizationID != 6 {
		t.Fatalf("principal: got=%+v", p)
	}
	if _, err := auth.Authenticate(Credentials{ServiceKey: "wrong", ProjectID: "5", OrganizationID: "6"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong key: want ErrUnauthorized got=%v", err)
	}
	if _, err := auth.Authenticate(Credentials{ServiceKey: "internal-key", ProjectID: "5"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing org: want ErrUnauthorized got=%v", err)
	}
	if _, err := auth.Authenticate(Credentials{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty: want ErrUnauthorized got=%v", err)
	}
	if _, err := auth.Authenticate(Credentials{Bearer: "x"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bearer without secret: want ErrUnauthorized got=%v", err)
	}
}

type fakeStarter struct {
	calls []temporalsdkclient.StartWorkflowOptions
	args  [][]interface{}
	err   error
}

func (f *fakeStarter) ExecuteWorkflow(_ context.Context, opts temporalsdkclient.StartWorkflowOptions, _ interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error) {
	f.calls = append(f.calls, opts)
	f.args = append(f.args, args)
	return nil, f.err
}

type serviceFixture struct {
	jobs  jobrepo.JobRunRepo
	docs  DocumentService
	k     *knowledge.Knowledge
	doc   *knowledge.KnowledgeDocument
	owner *ctxutil.Principal
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	k := testutil.SeedKnowledge(t, db, "kb", nil)
	doc := testutil.SeedDocument(t, db, k, knowledge.DocumentSource{Source: knowledge.SourceManual, Type: knowledge.TypeManualFile, CompletePath: "a.txt"})
	return &serviceFixture{
		jobs:  jobrepo.NewJobRunRepo(db, log),
		docs:  NewDocumentService(log, knowledgerepo.NewDocumentRepo(db, log), knowledgerepo.NewSegmentStore(db, log)),
		k:     k,
		doc:   doc,
		owner: &ctxutil.Principal{ProjectID: k.ProjectID, OrganizationID: k.OrganizationID},
	}
}

func TestDocumentServiceScopesByPrincipal(t *testing.T) {
	f := newServiceFixture(t)
	dbc := dbctx.New(context.Background())

	if _, err := f.docs.Get(dbc, f.owner, f.k.ID, f.doc.ID); err != nil {
		t.Fatalf("owner Get: %v", err)
	}
	stranger := &ctxutil.Principal{ProjectID: f.k.ProjectID, OrganizationID: f.k.OrganizationID + 1}
	if _, err := f.docs.Get(dbc, stranger, f.k.ID, f.doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger: want ErrNotFound got=%v", err)
	}
	if _, err := f.docs.Get(dbc, f.owner, f.k.ID+1, f.doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrong knowledge: want ErrNotFound got=%v", err)
	}

	doc, err := f.docs.SetPaused(dbc, f.owner, f.k.ID, f.doc.ID, true)
	if err != nil || !doc.IsPaused {
		t.Fatalf("SetPaused: doc=%+v err=%v", doc, err)
	}
}

func TestEnqueueLocalDeduplicates(t *testing.T) {
	f := newServiceFixture(t)
	svc, err := NewJobService(testutil.Logger(t), f.jobs, f.docs, ExecutorLocal, nil, "")
	if err != nil {
		t.Fatalf("NewJobService: %v", err)
	}
	ctx := ctxutil.WithTrace(context.Background(), ctxutil.Trace{RequestID: "req-1"})
	dbc := dbctx.New(ctx)

	first, created, err := svc.EnqueueIndexDocument(dbc, f.owner, f.k.ID, f.doc.ID)
	if err != nil || !created {
		t.Fatalf("first enqueue: created=%v err=%v", created, err)
	}
	if first.Status != types.StatusQueued || first.EntityID != f.doc.ID {
		t.Fatalf("job: got=%+v", first)
	}
	if !strings.Contains(string(first.Payload), `"request_id":"req-1"`) {
		t.Fatalf("payload: got=%s", first.Payload)
	}

	second, created, err := svc.EnqueueIndexDocument(dbc, f.owner, f.k.ID, f.doc.ID)
	if err != nil || created {
		t.Fatalf("second enqueue: created=%v err=%v", created, err)
	}
	if second.ID != first.ID {
		t.Fatalf("dedupe: want=%s got=%s", first.ID, second.ID)
	}

	got, err := svc.GetByID(dbc, f.owner, first.ID)
	if err != nil || got.ID != first.ID {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}
	if _, err := svc.GetByID(dbc, &ctxutil.Principal{ProjectID: 99, OrganizationID: 99}, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign GetByID: want ErrNotFound got=%v", err)
	}
	if _, err := svc.GetByID(dbc, f.owner, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing GetByID: want ErrNotFound got=%v", err)
	}
}

func TestEnqueueTemporalStartsWorkflow(t *testing.T) {
	f := newServiceFixture(t)
	starter := &fakeStarter{}
	svc, err := NewJobService(testutil.Logger(t), f.jobs, f.docs, ExecutorTemporal, starter, "indexing")
	if err != nil {
		t.Fatalf("NewJobService: %v", err)
	}
	job, _, err := svc.EnqueueIndexDocument(dbctx.New(context.Background()), f.owner, f.k.ID, f.doc.ID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(starter.calls) != 1 {
		t.Fatalf("workflow starts: want=1 got=%d", len(starter.calls))
	}
	if starter.calls[0].ID != job.ID.String() || starter.calls[0].TaskQueue != "indexing" {
		t.Fatalf("options: got=%+v", starter.calls[0])
	}
	if len(starter.args[0]) != 1 || starter.args[0][0] != job.ID.String() {
		t.Fatalf("args: got=%v", starter.args[0])
	}
}

func TestDispatchFailureMarksJobFailed(t *testing.T) {
	f := newServiceFixture(t)
	starter := &fakeStarter{err: errors.New("temporal unavailable")}
	svc, _ := NewJobService(testutil.Logger(t), f.jobs, f.docs, ExecutorTemporal, starter, "indexing")
	dbc := dbctx.New(context.Background())

	job, _, err := svc.EnqueueIndexDocument(dbc, f.owner, f.k.ID, f.doc.ID)
	if err == nil {
		t.Fatalf("expected dispatch error")
	}
	got, _ := f.jobs.GetByID(dbc, job.ID)
	if got.Status != types.StatusFailed || got.Stage != "dispatch" {
		t.Fatalf("want failed/dispatch got %s/%s", got.Status, got.Stage)
	}
}

func TestNewJobServiceValidatesExecutor(t *testing.T) {
	if _, err := NewJobService(testutil.Logger(t), nil, nil, ExecutorTemporal, nil, ""); err == nil {
		t.Fatalf("temporal without client accepted")
	}
	if _, err := NewJobService(testutil.Logger(t), nil, nil, "celery", nil, ""); err == nil {
		t.Fatalf("unknown executor accepted")
	}
}
