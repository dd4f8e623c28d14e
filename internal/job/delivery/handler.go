package delivery

import (
	"errors"
	"net/http"

	jobdomain "mailstream-backend/internal/job/domain"
	"mailstream-backend/internal/job/usecase"

	"github.com/gin-gonic/gin"
)

type JobHandler struct {
	tracker *usecase.JobTracker
}

func NewJobHandler(tracker *usecase.JobTracker) *JobHandler {
	return &JobHandler{tracker: tracker}
}

type registerRequest struct {
	Params map[string]interface{} `json:"params"`
}

// publicStatus maps the short-lived pending state to in_progress.
// Externally a registered job is already being worked; pending is an
// internal detail of the state machine.
func publicStatus(job *jobdomain.Job) string {
	if job.Status == jobdomain.StatusPending {
		return jobdomain.StatusInProgress
	}
	return job.Status
}

// Register starts a job of the requested kind for the authenticated
// user. A fresh start returns 202; if a job of that kind is already
// running, the existing job is returned with 409 and nothing new starts.
func (h *JobHandler) Register(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	kind := c.Param("kind")

	var req registerRequest
	_ = c.ShouldBindJSON(&req)

	job, err := h.tracker.Register(userID, kind, req.Params)
	if err != nil {
		if errors.Is(err, jobdomain.ErrActiveJobExists) {
			c.JSON(http.StatusConflict, gin.H{
				"job_id":        job.ID,
				"installed":     job.Status == jobdomain.StatusCompleted,
				"status":        publicStatus(job),
				"progress":      job.Progress,
				"poll_endpoint": "/api/jobs/" + kind,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":        job.ID,
		"status":        publicStatus(job),
		"poll_endpoint": "/api/jobs/" + kind,
	})
}

// Status reports the authenticated user's job of the given kind. For a
// kind the user never started it reports installed=false rather than 404,
// so clients can poll unconditionally.
func (h *JobHandler) Status(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	kind := c.Param("kind")

	job, err := h.tracker.GetStatus(userID, kind)
	if err != nil {
		if errors.Is(err, jobdomain.ErrJobNotFound) {
			c.JSON(http.StatusOK, gin.H{"installed": false})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"installed": job.Status == jobdomain.StatusCompleted,
		"job_id":    job.ID,
		"status":    job.Status,
		"progress":  job.Progress,
		"result":    job.Result,
		"error":     job.Error,
	})
}
