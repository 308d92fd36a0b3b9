package knowledge

import (
	"time"

	"gorm.io/datatypes"
)

// KnowledgeDocumentSegment is the relational record of one indexed chunk.
type KnowledgeDocumentSegment struct {
	ID                  uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	KnowledgeID         uint64         `gorm:"column:knowledge_id;not null;uniqueIndex:idx_segment_knowledge_node,priority:1" json:"knowledge_id"`
	KnowledgeDocumentID uint64         `gorm:"column:knowledge_document_id;not null;index" json:"knowledge_document_id"`
	Position            int            `gorm:"column:position;not null" json:"position"`
	Content             string         `gorm:"column:content;type:text;not null" json:"content"`
	Answer              string         `gorm:"column:answer;type:text" json:"answer,omitempty"`
	WordCount           int            `gorm:"column:word_count;not null;default:0" json:"word_count"`
	TokenCount          int            `gorm:"column:token_count;not null;default:0" json:"token_count"`
	HitCount            int            `gorm:"column:hit_count;not null;default:0" json:"hit_count"`
	Keywords            datatypes.JSON `gorm:"column:keywords" json:"keywords,omitempty"`
	IndexNodeID         string         `gorm:"column:index_node_id;not null;uniqueIndex:idx_segment_knowledge_node,priority:2" json:"index_node_id"`
	IndexNodeHash       string         `gorm:"column:index_node_hash" json:"index_node_hash"`
	Enabled             bool           `gorm:"column:enabled;not null;default:false" json:"enabled"`
	Status              string         `gorm:"column:status;not null;default:waiting;index" json:"status"`
	Error               string         `gorm:"column:error" json:"error,omitempty"`
	IndexingAt          *time.Time     `gorm:"column:indexing_at" json:"indexing_at,omitempty"`
	CompletedAt         *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	StoppedAt           *time.Time     `gorm:"column:stopped_at" json:"stopped_at,omitempty"`
	CreatedBy           uint64         `gorm:"column:created_by" json:"created_by"`
	UpdatedBy           uint64         `gorm:"column:updated_by" json:"updated_by"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (KnowledgeDocumentSegment) TableName() string { return "knowledge_document_segments" }
