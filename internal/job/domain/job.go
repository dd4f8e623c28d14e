package domain

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// Job statuses. A job is created pending, moves to in_progress when a
// worker picks it up, and ends in exactly one of the two terminal
// states. Terminal jobs never change status again; a new request for
// the same kind starts a fresh attempt.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	// ErrActiveJobExists means the user already has a non-terminal job
	// of this kind; the existing one is returned alongside.
	ErrActiveJobExists = errors.New("an active job of this kind already exists")

	ErrJobNotFound = errors.New("job not found")
)

// Job is one tracked asynchronous operation. The (user_id, kind) unique
// constraint enforces at most one row per pair; re-registration resets
// the existing row instead of inserting a second one.
type Job struct {
	ID        string            `json:"id" gorm:"primaryKey"`
	UserID    string            `json:"user_id" gorm:"uniqueIndex:idx_user_kind;not null"`
	Kind      string            `json:"kind" gorm:"uniqueIndex:idx_user_kind;not null"`
	Status    string            `json:"status" gorm:"not null;default:pending"`
	Progress  int               `json:"progress" gorm:"default:0"`
	Params    datatypes.JSONMap `json:"params,omitempty"`
	Result    datatypes.JSONMap `json:"result,omitempty"`
	Error     *string           `json:"error,omitempty"`
	StartedAt *time.Time        `json:"started_at"`
	EndedAt   *time.Time        `json:"ended_at"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Terminal reports whether the job has finished, successfully or not.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
