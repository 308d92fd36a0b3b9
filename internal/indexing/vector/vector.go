// Package vector defines the sink that stores embedded chunks in a vector index.
package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
)

// Sink upserts embedded chunks into a named collection.
type Sink interface {
	// CreateCollection is a no-op when the collection exists.
	CreateCollection(ctx context.Context, name string, dim int) error
	// AddTexts upserts one record per (chunk, embedding) pair keyed by the
	// content hash. Partial failures are reported as *IndexingError.
	AddTexts(ctx context.Context, name string, chunks []chunk.Chunk, embeddings [][]float32) error
	// TextExists reports whether a record with id exists. Backend errors read
	// as false.
	TextExists(ctx context.Context, name, id string) bool
}

// Record is the stored form of one chunk.
type Record struct {
	ID         string
	Hash       string
	DocumentID string
	Text       string
	Vector     []float32
	Metadata   map[string]any
	Entities   map[string][]string
}

// KeywordFields are indexed for exact-match filtering in every backend.
var KeywordFields = []string{
	"metadata." + chunk.KeyDocumentID,
	"metadata." + chunk.KeyKnowledgeID,
	"metadata." + chunk.KeyKnowledgeDocumentID,
	"metadata." + chunk.KeyProjectID,
	"metadata." + chunk.KeyOrganizationID,
}

// CollectionName normalises a knowledge storage namespace.
func CollectionName(namespace string) string {
	return strings.ToLower(strings.TrimSpace(namespace))
}

// BuildRecords pairs chunks with embeddings. The record id is the sha256 of
// the chunk content.
func BuildRecords(chunks []chunk.Chunk, embeddings [][]float32) ([]Record, error) {
	if len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("vector: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	out := make([]Record, 0, len(chunks))
	for i, c := range chunks {
		if len(embeddings[i]) == 0 {
			return nil, fmt.Errorf("vector: empty embedding at %d", i)
		}
		hash := chunk.HashText(c.Content)
		meta := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			meta[k] = v
		}
		out = append(out, Record{
			ID:         hash,
			Hash:       hash,
			DocumentID: hash,
			Text:       c.Content,
			Vector:     embeddings[i],
			Metadata:   meta,
			Entities:   c.Entities,
		})
	}
	return out, nil
}

// ItemError is one failed record of a bulk upsert.
type ItemError struct {
	ID     string
	Reason string
}

// IndexingError reports the records a bulk upsert could not write.
type IndexingError struct {
	Collection string
	Items      []ItemError
}

func (e *IndexingError) Error() string {
	if e == nil {
		return "vector indexing failed"
	}
	ids := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		ids = append(ids, it.ID)
	}
	msg := fmt.Sprintf("%d document(s) failed to index in %q: %s", len(e.Items), e.Collection, strings.Join(ids, ", "))
	if len(e.Items) > 0 && e.Items[0].Reason != "" {
		msg += " (first error: " + e.Items[0].Reason + ")"
	}
	return msg
}
