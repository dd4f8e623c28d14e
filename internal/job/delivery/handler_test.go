package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jobdomain "mailstream-backend/internal/job/domain"
	"mailstream-backend/internal/job/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*jobdomain.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*jobdomain.Job)}
}

func (r *memJobRepo) Insert(job *jobdomain.Job) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := job.UserID + "|" + job.Kind
	if _, ok := r.jobs[key]; ok {
		return false, nil
	}
	copied := *job
	r.jobs[key] = &copied
	return true, nil
}

func (r *memJobRepo) FindByUserKind(userID, kind string) (*jobdomain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[userID+"|"+kind]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (r *memJobRepo) FindByID(id string) (*jobdomain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.ID == id {
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memJobRepo) ResetIfTerminal(id string, params datatypes.JSONMap) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.ID == id && job.Terminal() {
			job.Status = jobdomain.StatusPending
			job.Progress = 0
			job.Params = params
			job.Result = nil
			job.Error = nil
			job.StartedAt = nil
			job.EndedAt = nil
			return true, nil
		}
	}
	return false, nil
}

func (r *memJobRepo) SetInProgress(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.ID == id && job.Status == jobdomain.StatusPending {
			job.Status = jobdomain.StatusInProgress
			now := time.Now()
			job.StartedAt = &now
		}
	}
	return nil
}

func (r *memJobRepo) SetProgress(id string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.ID == id && job.Status == jobdomain.StatusInProgress {
			job.Progress = progress
		}
	}
	return nil
}

func (r *memJobRepo) Complete(id string, result datatypes.JSONMap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.ID == id && job.Status == jobdomain.StatusInProgress {
			job.Status = jobdomain.StatusCompleted
			job.Progress = 100
			job.Result = result
			now := time.Now()
			job.EndedAt = &now
		}
	}
	return nil
}

func (r *memJobRepo) Fail(id string, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.ID == id && (job.Status == jobdomain.StatusPending || job.Status == jobdomain.StatusInProgress) {
			job.Status = jobdomain.StatusFailed
			job.Error = &message
			now := time.Now()
			job.EndedAt = &now
		}
	}
	return nil
}

func setupJobRouter(tracker *usecase.JobTracker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewJobHandler(tracker)
	r.POST("/api/jobs/:kind", func(c *gin.Context) {
		c.Set("userID", "user-1")
		h.Register(c)
	})
	r.GET("/api/jobs/:kind", func(c *gin.Context) {
		c.Set("userID", "user-1")
		h.Status(c)
	})
	return r
}

func postJob(r *gin.Engine, kind string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+kind, strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterReportsJobInFlight(t *testing.T) {
	tracker := usecase.NewJobTracker(newMemJobRepo())
	tracker.RegisterRunner("setup", func(ctx context.Context, userID string, params map[string]interface{}, report func(int)) (map[string]interface{}, error) {
		return nil, nil
	})

	r := setupJobRouter(tracker)

	w := postJob(r, "setup")
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["job_id"])
	assert.Equal(t, jobdomain.StatusInProgress, resp["status"])
	assert.Equal(t, "/api/jobs/setup", resp["poll_endpoint"])
}

func TestRegisterConflictReturnsExistingJob(t *testing.T) {
	release := make(chan struct{})
	tracker := usecase.NewJobTracker(newMemJobRepo())
	tracker.RegisterRunner("setup", func(ctx context.Context, userID string, params map[string]interface{}, report func(int)) (map[string]interface{}, error) {
		<-release
		return nil, nil
	})
	defer close(release)

	r := setupJobRouter(tracker)

	first := postJob(r, "setup")
	require.Equal(t, http.StatusAccepted, first.Code)
	var firstResp map[string]interface{}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	second := postJob(r, "setup")
	require.Equal(t, http.StatusConflict, second.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, firstResp["job_id"], resp["job_id"])
	assert.Equal(t, false, resp["installed"])
	assert.Equal(t, jobdomain.StatusInProgress, resp["status"])
	assert.Equal(t, "/api/jobs/setup", resp["poll_endpoint"])
}
