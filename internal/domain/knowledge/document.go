package knowledge

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// KnowledgeDocument is one source document attached to a Knowledge, plus the
// bookkeeping of its last indexing run.
type KnowledgeDocument struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	KnowledgeID    uint64         `gorm:"column:knowledge_id;not null;index" json:"knowledge_id"`
	ProjectID      uint64         `gorm:"column:project_id;not null;index" json:"project_id"`
	OrganizationID uint64         `gorm:"column:organization_id;not null;index" json:"organization_id"`
	Name           string         `gorm:"column:name" json:"name"`
	Language       string         `gorm:"column:language" json:"language,omitempty"`
	DocumentSource datatypes.JSON `gorm:"column:document_source" json:"document_source"`

	IndexStatus     string  `gorm:"column:index_status;not null;default:pending;index" json:"index_status"`
	WordCount       int     `gorm:"column:word_count;not null;default:0" json:"word_count"`
	TokenCount      int     `gorm:"column:token_count;not null;default:0" json:"token_count"`
	IndexingLatency float64 `gorm:"column:indexing_latency;not null;default:0" json:"indexing_latency"`
	Error           string  `gorm:"column:error" json:"error,omitempty"`

	ProcessingStartedAt  *time.Time `gorm:"column:processing_started_at" json:"processing_started_at,omitempty"`
	ParsingCompletedAt   *time.Time `gorm:"column:parsing_completed_at" json:"parsing_completed_at,omitempty"`
	CleaningCompletedAt  *time.Time `gorm:"column:cleaning_completed_at" json:"cleaning_completed_at,omitempty"`
	SplittingCompletedAt *time.Time `gorm:"column:splitting_completed_at" json:"splitting_completed_at,omitempty"`
	CompletedAt          *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	IsPaused bool       `gorm:"column:is_paused;not null;default:false" json:"is_paused"`
	PausedAt *time.Time `gorm:"column:paused_at" json:"paused_at,omitempty"`

	CreatedBy uint64         `gorm:"column:created_by" json:"created_by"`
	UpdatedBy uint64         `gorm:"column:updated_by" json:"updated_by"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (KnowledgeDocument) TableName() string { return "knowledge_documents" }

// Source decodes the document source descriptor.
func (d *KnowledgeDocument) Source() (DocumentSource, error) {
	var src DocumentSource
	if len(d.DocumentSource) == 0 {
		return src, fmt.Errorf("document %d has no source descriptor", d.ID)
	}
	if err := json.Unmarshal(d.DocumentSource, &src); err != nil {
		return src, fmt.Errorf("decode document source: %w", err)
	}
	return src, nil
}

// SetSource encodes src into the document row.
func (d *KnowledgeDocument) SetSource(src DocumentSource) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	d.DocumentSource = datatypes.JSON(raw)
	return nil
}
