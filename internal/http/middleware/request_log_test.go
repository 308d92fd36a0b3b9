package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/knowledge-indexer/internal/pkg/ctxutil"
)

func fieldMap(kv []interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

func TestRequestFieldsCarryRouteIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got map[string]interface{}
	r := gin.New()
	r.POST("/v1/knowledge/:knowledgeId/documents/:documentId/index", func(c *gin.Context) {
		ctx := ctxutil.WithPrincipal(c.Request.Context(), &ctxutil.Principal{Subject: "svc-api", ProjectID: 11, OrganizationID: 22})
		c.Request = c.Request.WithContext(ctx)
		_ = c.Error(errors.New("queue unavailable"))
		c.Status(http.StatusServiceUnavailable)
		got = fieldMap(requestFields(c, 15*time.Millisecond))
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/knowledge/7/documents/42/index", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	want := map[string]interface{}{
		"method":                http.MethodPost,
		"route":                 "/v1/knowledge/:knowledgeId/documents/:documentId/index",
		"status":                http.StatusServiceUnavailable,
		"duration_ms":           int64(15),
		"knowledge_id":          "7",
		"knowledge_document_id": "42",
		"caller":                "svc-api",
		"project_id":            uint64(11),
		"organization_id":       uint64(22),
		"error":                 "queue unavailable",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: want=%v got=%v", k, v, got[k])
		}
	}
	if _, ok := got["job_id"]; ok {
		t.Fatalf("job_id logged for a document route")
	}
}

func TestRequestFieldsUnmatchedRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/nope", nil)

	got := fieldMap(requestFields(c, 0))
	if got["route"] != "unmatched" {
		t.Fatalf("route: want=unmatched got=%v", got["route"])
	}
}
