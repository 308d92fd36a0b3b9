// Package chunk holds the unit of text that flows from extraction through
// chunking and transformation into the segment store and the vector sink.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Metadata keys stamped on every chunk.
const (
	KeyDocumentID          = "document_id"
	KeyDocHash             = "doc_hash"
	KeyKnowledgeDocumentID = "knowledge_document_id"
	KeyKnowledgeID         = "knowledge_id"
	KeyProjectID           = "project_id"
	KeyOrganizationID      = "organization_id"
	KeyAnswer              = "answer"
	KeySource              = "source"
	KeyPage                = "page"
)

type Chunk struct {
	Content  string              `json:"content"`
	Metadata map[string]any      `json:"metadata"`
	Entities map[string][]string `json:"entities,omitempty"`
}

func New(content string) Chunk {
	return Chunk{Content: content, Metadata: map[string]any{}}
}

// HashText is the content identity used for segment node ids and vector ids.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Set writes a metadata key, allocating the map if needed.
func (c *Chunk) Set(key string, val any) {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata[key] = val
}

// String returns a metadata value as a string. Missing keys yield "".
func (c Chunk) String(key string) string {
	v, ok := c.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case uint64:
		return strconv.FormatUint(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(v)
	}
}

// DocumentID is the content hash assigned during transformation.
func (c Chunk) DocumentID() string { return c.String(KeyDocumentID) }

// DocumentHash mirrors DocumentID; both are kept for consumers that read either.
func (c Chunk) DocumentHash() string { return c.String(KeyDocHash) }

// PopAnswer removes and returns the optional QA answer carried in metadata.
func (c *Chunk) PopAnswer() string {
	ans := c.String(KeyAnswer)
	delete(c.Metadata, KeyAnswer)
	return ans
}

// Clone deep-copies metadata and entities so transformers can work on a copy.
func (c Chunk) Clone() Chunk {
	out := Chunk{Content: c.Content, Metadata: make(map[string]any, len(c.Metadata))}
	for k, v := range c.Metadata {
		out.Metadata[k] = v
	}
	if c.Entities != nil {
		out.Entities = make(map[string][]string, len(c.Entities))
		for k, v := range c.Entities {
			out.Entities[k] = append([]string(nil), v...)
		}
	}
	return out
}

// Texts extracts the content of each chunk in order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}
