package testutil

import (
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
)

func SeedKnowledge(tb testing.TB, db *gorm.DB, namespace string, opts map[string]string) *knowledge.Knowledge {
	tb.Helper()
	k := &knowledge.Knowledge{
		ProjectID:                  11,
		OrganizationID:             22,
		Name:                       "kb-" + namespace,
		EmbeddingModelProviderName: "openai",
		StorageNamespace:           namespace,
	}
	for key, val := range opts {
		k.EmbeddingModelOptions = append(k.EmbeddingModelOptions, knowledge.KnowledgeEmbeddingModelOption{Key: key, Value: val})
	}
	if err := db.Create(k).Error; err != nil {
		tb.Fatalf("seed knowledge: %v", err)
	}
	return k
}

func SeedDocument(tb testing.TB, db *gorm.DB, k *knowledge.Knowledge, src knowledge.DocumentSource) *knowledge.KnowledgeDocument {
	tb.Helper()
	doc := &knowledge.KnowledgeDocument{
		KnowledgeID:    k.ID,
		ProjectID:      k.ProjectID,
		OrganizationID: k.OrganizationID,
		Name:           src.Name,
		IndexStatus:    knowledge.IndexStatusPending,
	}
	if err := doc.SetSource(src); err != nil {
		tb.Fatalf("encode source: %v", err)
	}
	if err := db.Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}
