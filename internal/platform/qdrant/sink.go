// Package qdrant implements the vector sink over Qdrant's REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
	"github.com/yungbote/knowledge-indexer/internal/indexing/vector"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

const (
	distanceEuclid    = "Euclid"
	maxErrorBodyBytes = 1024
)

// pointIDNamespace turns content hashes into stable UUID point ids, since
// Qdrant only accepts integers or UUIDs.
var pointIDNamespace = uuid.MustParse("6f1d7c1e-3a52-4b8e-9a44-2d0c5b1f7e90")

type Sink struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	known map[string]bool
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type payload struct {
	Hash       string              `json:"hash"`
	DocumentID string              `json:"document_id"`
	Text       string              `json:"text"`
	Metadata   map[string]any      `json:"metadata"`
	Entities   map[string][]string `json:"entities,omitempty"`
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload payload   `json:"payload"`
}

func NewSink(log *logger.Logger, cfg Config) (*Sink, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &Sink{
		log:     log.With("service", "QdrantVectorSink"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		known:   map[string]bool{},
	}
	s.log.Info("Qdrant vector sink selected", "url", s.baseURL, "hnsw_m", cfg.HNSWM, "hnsw_ef_construct", cfg.HNSWEfConstruct)
	return s, nil
}

// Ready calls /readyz.
func (s *Sink) Ready(ctx context.Context) error {
	return s.doJSON(ctx, "ready", http.MethodGet, "/readyz", nil, nil)
}

func (s *Sink) CreateCollection(ctx context.Context, name string, dim int) error {
	const op = "create_collection"
	name = vector.CollectionName(name)
	if name == "" {
		return opErr(op, OperationErrorValidation, "collection name is required", nil)
	}
	if dim <= 0 {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("invalid vector dimension %d", dim), nil)
	}
	if s.isKnown(name) {
		return nil
	}

	var exists struct {
		Exists bool `json:"exists"`
	}
	if err := s.doJSON(ctx, op, http.MethodGet, collectionPath(name, "/exists"), nil, &exists); err != nil {
		return err
	}
	if exists.Exists {
		s.markKnown(name)
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": distanceEuclid},
		"hnsw_config": map[string]any{
			"m":            s.cfg.HNSWM,
			"ef_construct": s.cfg.HNSWEfConstruct,
		},
	}
	if err := s.doJSON(ctx, op, http.MethodPut, collectionPath(name, ""), body, nil); err != nil {
		return err
	}
	for _, field := range vector.KeywordFields {
		idx := map[string]any{"field_name": field, "field_schema": "keyword"}
		if err := s.doJSON(ctx, op, http.MethodPut, collectionPath(name, "/index?wait=true"), idx, nil); err != nil {
			return err
		}
	}
	s.markKnown(name)
	s.log.Info("collection created", "collection", name, "dim", dim)
	return nil
}

// AddTexts upserts all well-formed records in one call. Records whose
// vector size differs from the first are skipped and reported together in an
// *vector.IndexingError. A rejected upsert reports every record as failed.
func (s *Sink) AddTexts(ctx context.Context, name string, chunks []chunk.Chunk, embeddings [][]float32) error {
	const op = "add_texts"
	name = vector.CollectionName(name)
	records, err := vector.BuildRecords(chunks, embeddings)
	if err != nil {
		return opErr(op, OperationErrorValidation, err.Error(), nil)
	}
	if len(records) == 0 {
		return nil
	}

	dim := len(records[0].Vector)
	points := make([]point, 0, len(records))
	var failed []vector.ItemError
	for _, r := range records {
		if len(r.Vector) != dim {
			failed = append(failed, vector.ItemError{
				ID:     r.ID,
				Reason: fmt.Sprintf("dimension mismatch: expected=%d got=%d", dim, len(r.Vector)),
			})
			continue
		}
		points = append(points, point{
			ID:     PointID(r.ID),
			Vector: r.Vector,
			Payload: payload{
				Hash:       r.Hash,
				DocumentID: r.DocumentID,
				Text:       r.Text,
				Metadata:   r.Metadata,
				Entities:   r.Entities,
			},
		})
	}

	if len(points) > 0 {
		req := map[string]any{"points": points}
		if err := s.doJSON(ctx, op, http.MethodPut, collectionPath(name, "/points?wait=true"), req, nil); err != nil {
			s.log.Warn("bulk upsert rejected", "collection", name, "points", len(points), "error", err)
			for _, p := range points {
				failed = append(failed, vector.ItemError{ID: p.Payload.DocumentID, Reason: err.Error()})
			}
		}
	}
	if len(failed) > 0 {
		return &vector.IndexingError{Collection: name, Items: failed}
	}
	return nil
}

func (s *Sink) TextExists(ctx context.Context, name, id string) bool {
	name = vector.CollectionName(name)
	if name == "" || strings.TrimSpace(id) == "" {
		return false
	}
	var out struct {
		ID json.RawMessage `json:"id"`
	}
	err := s.doJSON(ctx, "text_exists", http.MethodGet, collectionPath(name, "/points/"+PointID(id)), nil, &out)
	if err != nil {
		if !IsNotFound(err) {
			s.log.Debug("text exists check failed", "collection", name, "error", err)
		}
		return false
	}
	return len(out.ID) > 0
}

// PointID maps a content hash to its Qdrant point id.
func PointID(hash string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(hash)).String()
}

func (s *Sink) isKnown(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.known[name]
}

func (s *Sink) markKnown(name string) {
	s.mu.Lock()
	s.known[name] = true
	s.mu.Unlock()
}

func collectionPath(name, suffix string) string {
	return "/collections/" + url.PathEscape(name) + suffix
}

func (s *Sink) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}
	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if msg := parseEnvelopeStatus(env.Status); msg != "" {
		return &OperationError{Code: OperationErrorRequestFailed, Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if strings.EqualFold(asString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", asString)
	}
	var asObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil && strings.TrimSpace(asObject.Error) != "" {
		return strings.TrimSpace(asObject.Error)
	}
	return "qdrant status=" + status
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
