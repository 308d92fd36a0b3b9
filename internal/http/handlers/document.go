package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/http/response"
	"github.com/yungbote/knowledge-indexer/internal/pkg/ctxutil"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
	"github.com/yungbote/knowledge-indexer/internal/services"
)

type DocumentHandler struct {
	log       *logger.Logger
	documents services.DocumentService
	jobs      services.JobService
}

func NewDocumentHandler(baseLog *logger.Logger, documents services.DocumentService, jobs services.JobService) *DocumentHandler {
	return &DocumentHandler{
		log:       baseLog.With("handler", "DocumentHandler"),
		documents: documents,
		jobs:      jobs,
	}
}

type documentView struct {
	ID              uint64     `json:"id"`
	KnowledgeID     uint64     `json:"knowledge_id"`
	Name            string     `json:"name"`
	IndexStatus     string     `json:"index_status"`
	WordCount       int        `json:"word_count"`
	TokenCount      int        `json:"token_count"`
	IndexingLatency float64    `json:"indexing_latency"`
	Error           string     `json:"error,omitempty"`
	IsPaused        bool       `json:"is_paused"`
	SegmentCount    int64      `json:"segment_count"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func newDocumentView(doc *types.KnowledgeDocument, segments int64) documentView {
	return documentView{
		ID:              doc.ID,
		KnowledgeID:     doc.KnowledgeID,
		Name:            doc.Name,
		IndexStatus:     doc.IndexStatus,
		WordCount:       doc.WordCount,
		TokenCount:      doc.TokenCount,
		IndexingLatency: doc.IndexingLatency,
		Error:           doc.Error,
		IsPaused:        doc.IsPaused,
		SegmentCount:    segments,
		CompletedAt:     doc.CompletedAt,
	}
}

func (h *DocumentHandler) ids(c *gin.Context) (uint64, uint64, bool) {
	kid, err := uintParam(c, "knowledgeId")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_knowledge_id", err)
		return 0, 0, false
	}
	did, err := uintParam(c, "documentId")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return 0, 0, false
	}
	return kid, did, true
}

// POST /v1/knowledge/:knowledgeId/documents/:documentId/index
func (h *DocumentHandler) Index(c *gin.Context) {
	kid, did, ok := h.ids(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	job, created, err := h.jobs.EnqueueIndexDocument(dbctx.New(ctx), ctxutil.GetPrincipal(ctx), kid, did)
	if err != nil {
		if job != nil {
			h.log.Warn("index job enqueued but dispatch failed", "job_id", job.ID, "error", err)
			response.RespondError(c, http.StatusServiceUnavailable, "dispatch_failed", err)
			return
		}
		response.RespondServiceError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{
		"job_id":  job.ID,
		"status":  job.Status,
		"created": created,
	})
}

// GET /v1/knowledge/:knowledgeId/documents/:documentId
func (h *DocumentHandler) Get(c *gin.Context) {
	kid, did, ok := h.ids(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	dbc := dbctx.New(ctx)
	doc, err := h.documents.Get(dbc, ctxutil.GetPrincipal(ctx), kid, did)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	n, err := h.documents.SegmentCount(dbc, doc.ID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"document": newDocumentView(doc, n)})
}

// POST /v1/knowledge/:knowledgeId/documents/:documentId/pause
func (h *DocumentHandler) Pause(c *gin.Context) { h.setPaused(c, true) }

// POST /v1/knowledge/:knowledgeId/documents/:documentId/resume
func (h *DocumentHandler) Resume(c *gin.Context) { h.setPaused(c, false) }

func (h *DocumentHandler) setPaused(c *gin.Context, paused bool) {
	kid, did, ok := h.ids(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	dbc := dbctx.New(ctx)
	doc, err := h.documents.SetPaused(dbc, ctxutil.GetPrincipal(ctx), kid, did, paused)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	n, err := h.documents.SegmentCount(dbc, doc.ID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"document": newDocumentView(doc, n)})
}
