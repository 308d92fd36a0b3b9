package knowledge

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// ModelParamCredentialID is the embedding option naming the vault credential
// used to authenticate against the embedding provider.
const ModelParamCredentialID = "rapida.credential_id"

// Knowledge is a collection of documents sharing one embedding model and one
// vector namespace.
type Knowledge struct {
	ID                         uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID                  uint64         `gorm:"column:project_id;not null;index" json:"project_id"`
	OrganizationID             uint64         `gorm:"column:organization_id;not null;index" json:"organization_id"`
	Name                       string         `gorm:"column:name;not null" json:"name"`
	Description                string         `gorm:"column:description" json:"description,omitempty"`
	EmbeddingModelProviderID   uint64         `gorm:"column:embedding_model_provider_id" json:"embedding_model_provider_id"`
	EmbeddingModelProviderName string         `gorm:"column:embedding_model_provider_name;not null" json:"embedding_model_provider_name"`
	StorageNamespace           string         `gorm:"column:storage_namespace;not null;uniqueIndex" json:"storage_namespace"`
	Visibility                 string         `gorm:"column:visibility;not null;default:private" json:"visibility"`
	Status                     string         `gorm:"column:status;not null;default:active" json:"status"`
	CreatedBy                  uint64         `gorm:"column:created_by" json:"created_by"`
	UpdatedBy                  uint64         `gorm:"column:updated_by" json:"updated_by"`
	CreatedAt                  time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt                  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt                  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	EmbeddingModelOptions []KnowledgeEmbeddingModelOption `gorm:"foreignKey:KnowledgeID" json:"embedding_model_options,omitempty"`
}

func (Knowledge) TableName() string { return "knowledges" }

// CollectionName is the vector collection backing this knowledge.
func (k *Knowledge) CollectionName() string {
	return strings.ToLower(strings.TrimSpace(k.StorageNamespace))
}

// ModelParameters flattens the embedding options into a key/value map.
// Later duplicates win.
func (k *Knowledge) ModelParameters() map[string]string {
	out := make(map[string]string, len(k.EmbeddingModelOptions))
	for _, opt := range k.EmbeddingModelOptions {
		if opt.Key == "" {
			continue
		}
		out[opt.Key] = opt.Value
	}
	return out
}

type KnowledgeEmbeddingModelOption struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	KnowledgeID uint64    `gorm:"column:knowledge_id;not null;index" json:"knowledge_id"`
	Key         string    `gorm:"column:key;not null" json:"key"`
	Value       string    `gorm:"column:value" json:"value"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (KnowledgeEmbeddingModelOption) TableName() string { return "knowledge_embedding_model_options" }
