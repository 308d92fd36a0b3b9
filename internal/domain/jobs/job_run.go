package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job statuses.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

const (
	JobTypeIndexKnowledgeDocument = "index_knowledge_document"
	EntityKnowledgeDocument       = "knowledge_document"
)

type JobRun struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uint64         `gorm:"column:organization_id;not null;index" json:"organization_id"`
	ProjectID      uint64         `gorm:"column:project_id;not null;index" json:"project_id"`
	JobType        string         `gorm:"column:job_type;not null;index" json:"job_type"`
	EntityType     string         `gorm:"column:entity_type;index" json:"entity_type,omitempty"`
	EntityID       uint64         `gorm:"column:entity_id;index" json:"entity_id,omitempty"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	Stage          string         `gorm:"column:stage;not null;index" json:"stage"`
	Progress       int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Attempts       int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Message        string         `gorm:"column:message" json:"message,omitempty"`
	Error          string         `gorm:"column:error" json:"error,omitempty"`
	LockedAt       *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt    *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt    *time.Time     `gorm:"column:last_error_at;index" json:"last_error_at,omitempty"`
	Payload        datatypes.JSON `gorm:"column:payload" json:"payload"`
	Result         datatypes.JSON `gorm:"column:result" json:"result"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime;index" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (JobRun) TableName() string { return "job_run" }

func (j *JobRun) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// IsTerminal reports whether no worker will pick the job up again on its own.
func (j *JobRun) IsTerminal() bool {
	return j.Status == StatusSucceeded || j.Status == StatusCanceled
}
