package http

import (
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	jobrepo "github.com/yungbote/knowledge-indexer/internal/data/repos/jobs"
	knowledgerepo "github.com/yungbote/knowledge-indexer/internal/data/repos/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/data/repos/testutil"
	knowledge "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	httpH "github.com/yungbote/knowledge-indexer/internal/http/handlers"
	httpMW "github.com/yungbote/knowledge-indexer/internal/http/middleware"
	"github.com/yungbote/knowledge-indexer/internal/services"
)

type apiFixture struct {
	engine *gin.Engine
	k      *knowledge.Knowledge
	doc    *knowledge.KnowledgeDocument
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	k := testutil.SeedKnowledge(t, db, "kb", nil)
	doc := testutil.SeedDocument(t, db, k, knowledge.DocumentSource{Source: knowledge.SourceManual, Type: knowledge.TypeManualFile, CompletePath: "a.txt"})

	docs := services.NewDocumentService(log, knowledgerepo.NewDocumentRepo(db, log), knowledgerepo.NewSegmentStore(db, log))
	jobs, err := services.NewJobService(log, jobrepo.NewJobRunRepo(db, log), docs, services.ExecutorLocal, nil, "")
	if err != nil {
		t.Fatalf("NewJobService: %v", err)
	}
	auth := services.NewAuthService(log, "", "svc-key")

	engine := NewRouter(RouterConfig{
		Log:             log,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, auth),
		DocumentHandler: httpH.NewDocumentHandler(log, docs, jobs),
		JobHandler:      httpH.NewJobHandler(jobs),
		HealthHandler:   httpH.NewHealthHandler(nil),
	})
	return &apiFixture{engine: engine, k: k, doc: doc}
}

func (f *apiFixture) do(t *testing.T, method, path string, project, org uint64) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(httpMW.HeaderServiceKey, "svc-key")
	req.Header.Set(httpMW.HeaderProjectID, fmt.Sprint(project))
	req.Header.Set(httpMW.HeaderOrganizationID, fmt.Sprint(org))
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func (f *apiFixture) docPath(suffix string) string {
	return fmt.Sprintf("/v1/knowledge/%d/documents/%d%s", f.k.ID, f.doc.ID, suffix)
}

func TestIndexEnqueuesOnce(t *testing.T) {
	f := newAPIFixture(t)

	rec, body := f.do(t, nethttp.MethodPost, f.docPath("/index"), f.k.ProjectID, f.k.OrganizationID)
	if rec.Code != nethttp.StatusAccepted {
		t.Fatalf("status: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if body["created"] != true || body["status"] != "queued" {
		t.Fatalf("body: got=%v", body)
	}
	jobID, _ := body["job_id"].(string)

	rec, body = f.do(t, nethttp.MethodPost, f.docPath("/index"), f.k.ProjectID, f.k.OrganizationID)
	if rec.Code != nethttp.StatusAccepted || body["created"] != false || body["job_id"] != jobID {
		t.Fatalf("second enqueue: code=%d body=%v", rec.Code, body)
	}

	rec, body = f.do(t, nethttp.MethodGet, "/v1/jobs/"+jobID, f.k.ProjectID, f.k.OrganizationID)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("get job: want=200 got=%d", rec.Code)
	}
	job, _ := body["job"].(map[string]any)
	if job["job_type"] != "index_knowledge_document" {
		t.Fatalf("job: got=%v", job)
	}
}

func TestDocumentStatusAndPause(t *testing.T) {
	f := newAPIFixture(t)

	rec, body := f.do(t, nethttp.MethodGet, f.docPath(""), f.k.ProjectID, f.k.OrganizationID)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("get: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	doc, _ := body["document"].(map[string]any)
	if doc["segment_count"] != float64(0) || doc["is_paused"] != false {
		t.Fatalf("document: got=%v", doc)
	}

	_, body = f.do(t, nethttp.MethodPost, f.docPath("/pause"), f.k.ProjectID, f.k.OrganizationID)
	doc, _ = body["document"].(map[string]any)
	if doc["is_paused"] != true {
		t.Fatalf("pause: got=%v", doc)
	}
	_, body = f.do(t, nethttp.MethodPost, f.docPath("/resume"), f.k.ProjectID, f.k.OrganizationID)
	doc, _ = body["document"].(map[string]any)
	if doc["is_paused"] != false {
		t.Fatalf("resume: got=%v", doc)
	}
}

func TestScopingAndAuth(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.do(t, nethttp.MethodGet, f.docPath(""), f.k.ProjectID+1, f.k.OrganizationID)
	if rec.Code != nethttp.StatusNotFound {
		t.Fatalf("foreign project: want=404 got=%d", rec.Code)
	}

	req := httptest.NewRequest(nethttp.MethodGet, f.docPath(""), nil)
	rec = httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	if rec.Code != nethttp.StatusUnauthorized {
		t.Fatalf("anonymous: want=401 got=%d", rec.Code)
	}

	rec, _ = f.do(t, nethttp.MethodGet, "/v1/knowledge/abc/documents/1", f.k.ProjectID, f.k.OrganizationID)
	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("bad id: want=400 got=%d", rec.Code)
	}
	rec, _ = f.do(t, nethttp.MethodGet, "/v1/jobs/not-a-uuid", f.k.ProjectID, f.k.OrganizationID)
	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("bad job id: want=400 got=%d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(nethttp.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	if rec.Code != nethttp.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: code=%d body=%q", rec.Code, rec.Body.String())
	}
}
