package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/knowledge-indexer/internal/domain/jobs"
	"github.com/yungbote/knowledge-indexer/internal/pkg/dbctx"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// ClaimPolicy decides which rows a worker may pick up.
type ClaimPolicy struct {
	// JobTypes restricts claims to these types when non-empty.
	JobTypes     []string
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

type JobRunRepo interface {
	Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	GetLatestForEntity(dbc dbctx.Context, jobType, entityType string, entityID uint64) (*types.JobRun, error)
	ClaimNextRunnable(dbc dbctx.Context, policy ClaimPolicy) (*types.JobRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	HasRunnableForEntity(dbc dbctx.Context, jobType, entityType string, entityID uint64) (bool, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error) {
	if len(jobs) == 0 {
		return []*types.JobRun{}, nil
	}
	if err := dbc.Conn(r.db).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.JobRun
	err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRunRepo) GetLatestForEntity(dbc dbctx.Context, jobType, entityType string, entityID uint64) (*types.JobRun, error) {
	if jobType == "" || entityType == "" || entityID == 0 {
		return nil, nil
	}
	var job types.JobRun
	err := dbc.Conn(r.db).
		Where("job_type = ? AND entity_type = ? AND entity_id = ?", jobType, entityType, entityID).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

// ClaimNextRunnable picks the oldest runnable row and marks it running. A row
// is runnable when queued, failed with attempts left and the retry delay
// elapsed, or running with a heartbeat older than StaleRunning.
func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, policy ClaimPolicy) (*types.JobRun, error) {
	now := time.Now()
	retryCutoff := now.Add(-policy.RetryDelay)
	staleCutoff := now.Add(-policy.StaleRunning)
	var claimed *types.JobRun
	err := dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		var job types.JobRun
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          status = ?
          OR (
            status = ?
            AND attempts < ?
            AND (last_error_at IS NULL OR last_error_at < ?)
          )
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, types.StatusQueued, types.StatusFailed, policy.MaxAttempts, retryCutoff, types.StatusRunning, staleCutoff)
		if len(policy.JobTypes) > 0 {
			q = q.Where("job_type IN ?", policy.JobTypes)
		}
		qErr := q.Order("created_at ASC").First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.JobRun{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.StatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.StatusRunning
		job.Attempts++
		job.LockedAt = &now
		job.HeartbeatAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(stampUpdated(updates)).Error
}

// UpdateFieldsUnlessStatus applies updates only while the row is not in one of
// disallowedStatuses. The bool reports whether a row was written.
func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	q := dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("id = ?", id)
	if len(disallowedStatuses) > 0 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}
	res := q.Updates(stampUpdated(updates))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("id = ? AND status = ?", id, types.StatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *jobRunRepo) HasRunnableForEntity(dbc dbctx.Context, jobType, entityType string, entityID uint64) (bool, error) {
	if jobType == "" || entityType == "" || entityID == 0 {
		return false, nil
	}
	var count int64
	err := dbc.Conn(r.db).
		Model(&types.JobRun{}).
		Where("job_type = ? AND entity_type = ? AND entity_id = ? AND status IN ?",
			jobType, entityType, entityID, []string{types.StatusQueued, types.StatusRunning},
		).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func stampUpdated(updates map[string]interface{}) map[string]interface{} {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return updates
}
