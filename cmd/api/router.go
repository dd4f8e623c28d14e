package api

import (
	"net/http"

	authDelivery "mailstream-backend/internal/auth/delivery"
	authrepo "mailstream-backend/internal/auth/repository"
	ingestDelivery "mailstream-backend/internal/ingest/delivery"
	jobDelivery "mailstream-backend/internal/job/delivery"
	"mailstream-backend/internal/notification"
	"mailstream-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	r *gin.Engine,
	cfg *config.Config,
	userRepo authrepo.UserRepository,
	ingestHandler *ingestDelivery.IngestHandler,
	jobHandler *jobDelivery.JobHandler,
	notifHandler *notification.Handler,
) {
	authRequired := authDelivery.AuthMiddleware(cfg.JWTSecret, userRepo)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Pub/Sub push deliveries authenticate at the infrastructure
		// level, not with user tokens.
		api.POST("/notifications/gmail", ingestHandler.GmailNotification)

		// Sync routes (protected)
		sync := api.Group("/sync")
		sync.Use(authRequired)
		{
			sync.POST("", ingestHandler.Sync)
			sync.GET("/status", ingestHandler.Status)
		}

		// Job routes (protected)
		jobs := api.Group("/jobs")
		jobs.Use(authRequired)
		{
			jobs.POST("/:kind", jobHandler.Register)
			jobs.GET("/:kind", jobHandler.Status)
		}

		// Device token routes (protected)
		if notifHandler != nil {
			devices := api.Group("/devices")
			devices.Use(authRequired)
			{
				devices.POST("/register", notifHandler.RegisterDevice)
				devices.POST("/unregister", notifHandler.UnregisterDevice)
			}
		}
	}
}
