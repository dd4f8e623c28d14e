package delivery

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"

	"mailstream-backend/internal/ingest/usecase"

	"github.com/gin-gonic/gin"
)

type IngestHandler struct {
	ingestUsecase usecase.IngestUsecase
}

func NewIngestHandler(ingestUsecase usecase.IngestUsecase) *IngestHandler {
	return &IngestHandler{
		ingestUsecase: ingestUsecase,
	}
}

type syncRequest struct {
	ForceFullSync bool `json:"force_full_sync"`
}

// Sync runs an ingestion pass for the authenticated user.
func (h *IngestHandler) Sync(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req syncRequest
	// Body is optional; an empty POST means a normal incremental run.
	_ = c.ShouldBindJSON(&req)

	result, err := h.ingestUsecase.Sync(c.Request.Context(), userID, req.ForceFullSync)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          result.Error == nil,
		"emails_processed": result.Processed,
		"emails_skipped":   result.Skipped,
		"sync_type":        result.SyncType,
		"is_first_sync":    result.IsFirstSync,
		"duration_ms":      result.DurationMs,
		"last_sync_at":     result.LastSyncAt,
		"error":            result.Error,
	})
}

// Status reports the authenticated user's sync state.
func (h *IngestHandler) Status(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	status, err := h.ingestUsecase.Status(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

// pushEnvelope is the Pub/Sub push delivery wrapper.
type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// gmailNotification is the payload Gmail publishes on the watch topic.
type gmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// GmailNotification handles Pub/Sub push deliveries from the Gmail
// watch topic. It always acks: a malformed payload would be redelivered
// forever, and a missed notification is covered by the scheduler anyway.
func (h *IngestHandler) GmailNotification(c *gin.Context) {
	var envelope pushEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		log.Printf("[IngestHandler] Malformed push envelope: %v", err)
		c.Status(http.StatusNoContent)
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		log.Printf("[IngestHandler] Failed to decode push data: %v", err)
		c.Status(http.StatusNoContent)
		return
	}

	var notification gmailNotification
	if err := json.Unmarshal(decoded, &notification); err != nil || notification.EmailAddress == "" {
		log.Printf("[IngestHandler] Failed to parse Gmail notification: %v", err)
		c.Status(http.StatusNoContent)
		return
	}

	log.Printf("[IngestHandler] Gmail notification for %s (historyId: %d)", notification.EmailAddress, notification.HistoryID)
	h.ingestUsecase.HandleNotification(notification.EmailAddress, notification.HistoryID)

	c.Status(http.StatusNoContent)
}
