package repository

import (
	"errors"
	"time"

	jobdomain "mailstream-backend/internal/job/domain"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobRepository persists tracked jobs. Exclusivity rests on the
// (user_id, kind) unique constraint plus guarded updates, so two
// concurrent registrations cannot both start a worker.
type JobRepository interface {
	// Insert tries to create the row. Returns false without error when
	// the (user_id, kind) pair already exists.
	Insert(job *jobdomain.Job) (bool, error)

	// FindByUserKind returns the job, or nil when the pair has none.
	FindByUserKind(userID, kind string) (*jobdomain.Job, error)

	// FindByID returns the job, or nil when it does not exist.
	FindByID(id string) (*jobdomain.Job, error)

	// ResetIfTerminal rearms a finished job for a fresh attempt. Returns
	// false when the job was not terminal, meaning another registration
	// got there first.
	ResetIfTerminal(id string, params datatypes.JSONMap) (bool, error)

	SetInProgress(id string) error
	SetProgress(id string, progress int) error
	Complete(id string, result datatypes.JSONMap) error
	Fail(id string, message string) error
}

type jobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Insert(job *jobdomain.Job) (bool, error) {
	job.Status = jobdomain.StatusPending
	job.CreatedAt = time.Now()
	job.UpdatedAt = time.Now()

	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "kind"}},
		DoNothing: true,
	}).Create(job)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *jobRepository) FindByUserKind(userID, kind string) (*jobdomain.Job, error) {
	var job jobdomain.Job
	err := r.db.Where("user_id = ? AND kind = ?", userID, kind).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) FindByID(id string) (*jobdomain.Job, error) {
	var job jobdomain.Job
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) ResetIfTerminal(id string, params datatypes.JSONMap) (bool, error) {
	result := r.db.Model(&jobdomain.Job{}).
		Where("id = ? AND status IN ?", id, []string{jobdomain.StatusCompleted, jobdomain.StatusFailed}).
		Updates(map[string]interface{}{
			"status":     jobdomain.StatusPending,
			"progress":   0,
			"params":     params,
			"result":     nil,
			"error":      nil,
			"started_at": nil,
			"ended_at":   nil,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *jobRepository) SetInProgress(id string) error {
	now := time.Now()
	return r.db.Model(&jobdomain.Job{}).
		Where("id = ? AND status = ?", id, jobdomain.StatusPending).
		Updates(map[string]interface{}{
			"status":     jobdomain.StatusInProgress,
			"started_at": now,
			"updated_at": now,
		}).Error
}

func (r *jobRepository) SetProgress(id string, progress int) error {
	return r.db.Model(&jobdomain.Job{}).
		Where("id = ? AND status = ?", id, jobdomain.StatusInProgress).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now(),
		}).Error
}

func (r *jobRepository) Complete(id string, result datatypes.JSONMap) error {
	now := time.Now()
	return r.db.Model(&jobdomain.Job{}).
		Where("id = ? AND status = ?", id, jobdomain.StatusInProgress).
		Updates(map[string]interface{}{
			"status":     jobdomain.StatusCompleted,
			"progress":   100,
			"result":     result,
			"ended_at":   now,
			"updated_at": now,
		}).Error
}

func (r *jobRepository) Fail(id string, message string) error {
	now := time.Now()
	return r.db.Model(&jobdomain.Job{}).
		Where("id = ? AND status IN ?", id, []string{jobdomain.StatusPending, jobdomain.StatusInProgress}).
		Updates(map[string]interface{}{
			"status":     jobdomain.StatusFailed,
			"error":      message,
			"ended_at":   now,
			"updated_at": now,
		}).Error
}
