package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	jobdomain "mailstream-backend/internal/job/domain"
	"mailstream-backend/internal/job/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Runner executes one kind of job. It reports progress through the
// callback and returns the job's result payload. A panic inside a
// runner fails the job instead of crashing the process.
type Runner func(ctx context.Context, userID string, params map[string]interface{}, report func(progress int)) (map[string]interface{}, error)

// CompletionHook is called after a job reaches a terminal state, for
// side effects like push notifications.
type CompletionHook func(userID string, job *jobdomain.Job)

// JobTracker registers and runs asynchronous jobs with at-most-one
// active job per (user, kind).
type JobTracker struct {
	repo       repository.JobRepository
	runners    map[string]Runner
	onFinished CompletionHook
}

func NewJobTracker(repo repository.JobRepository) *JobTracker {
	return &JobTracker{
		repo:    repo,
		runners: make(map[string]Runner),
	}
}

// RegisterRunner binds a job kind to its implementation. Called during
// wiring, before any requests arrive.
func (t *JobTracker) RegisterRunner(kind string, runner Runner) {
	t.runners[kind] = runner
}

// OnFinished installs the terminal-state hook.
func (t *JobTracker) OnFinished(hook CompletionHook) {
	t.onFinished = hook
}

// Register starts a job of the given kind for the user. If the user
// already has a non-terminal job of that kind, the existing job is
// returned with ErrActiveJobExists and nothing new starts. A terminal
// job is rearmed in place for a fresh attempt.
func (t *JobTracker) Register(userID, kind string, params map[string]interface{}) (*jobdomain.Job, error) {
	runner, ok := t.runners[kind]
	if !ok {
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}

	job := &jobdomain.Job{
		ID:     uuid.New().String(),
		UserID: userID,
		Kind:   kind,
		Status: jobdomain.StatusPending,
		Params: datatypes.JSONMap(params),
	}

	created, err := t.repo.Insert(job)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if !created {
		existing, err := t.repo.FindByUserKind(userID, kind)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("job row vanished for user %s kind %s", userID, kind)
		}
		if !existing.Terminal() {
			return existing, jobdomain.ErrActiveJobExists
		}

		// Rearm the finished row. The guard loses to a concurrent
		// registration that rearmed it first; that one owns the run.
		rearmed, err := t.repo.ResetIfTerminal(existing.ID, datatypes.JSONMap(params))
		if err != nil {
			return nil, err
		}
		if !rearmed {
			current, err := t.repo.FindByUserKind(userID, kind)
			if err != nil {
				return nil, err
			}
			return current, jobdomain.ErrActiveJobExists
		}

		job = existing
		job.Status = jobdomain.StatusPending
		job.Progress = 0
		job.Params = datatypes.JSONMap(params)
		job.Result = nil
		job.Error = nil
		job.StartedAt = nil
		job.EndedAt = nil
	}

	go t.run(job.ID, userID, kind, runner, params)

	return job, nil
}

// GetStatus returns the user's job of the given kind.
func (t *JobTracker) GetStatus(userID, kind string) (*jobdomain.Job, error) {
	job, err := t.repo.FindByUserKind(userID, kind)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, jobdomain.ErrJobNotFound
	}
	return job, nil
}

func (t *JobTracker) run(jobID, userID, kind string, runner Runner, params map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[JobTracker] Job %s (%s) panicked: %v", jobID, kind, r)
			t.finish(jobID, userID, fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	if err := t.repo.SetInProgress(jobID); err != nil {
		log.Printf("[JobTracker] Failed to mark job %s in progress: %v", jobID, err)
		return
	}

	report := func(progress int) {
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		if err := t.repo.SetProgress(jobID, progress); err != nil {
			log.Printf("[JobTracker] Failed to report progress for job %s: %v", jobID, err)
		}
	}

	start := time.Now()
	result, err := runner(context.Background(), userID, params, report)
	if err != nil {
		log.Printf("[JobTracker] Job %s (%s) failed after %s: %v", jobID, kind, time.Since(start), err)
		t.finish(jobID, userID, err.Error(), nil)
		return
	}

	log.Printf("[JobTracker] Job %s (%s) completed in %s", jobID, kind, time.Since(start))
	t.finish(jobID, userID, "", datatypes.JSONMap(result))
}

func (t *JobTracker) finish(jobID, userID, errMsg string, result datatypes.JSONMap) {
	var err error
	if errMsg != "" {
		err = t.repo.Fail(jobID, errMsg)
	} else {
		err = t.repo.Complete(jobID, result)
	}
	if err != nil {
		log.Printf("[JobTracker] Failed to finalize job %s: %v", jobID, err)
		return
	}

	if t.onFinished != nil {
		if job, err := t.repo.FindByID(jobID); err == nil && job != nil {
			t.onFinished(userID, job)
		}
	}
}
