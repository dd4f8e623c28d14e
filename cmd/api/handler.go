package api

import (
	authrepo "mailstream-backend/internal/auth/repository"
	ingestDelivery "mailstream-backend/internal/ingest/delivery"
	ingestUsecasePkg "mailstream-backend/internal/ingest/usecase"
	jobDelivery "mailstream-backend/internal/job/delivery"
	jobUsecasePkg "mailstream-backend/internal/job/usecase"
	"mailstream-backend/internal/notification"
	"mailstream-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	config        *config.Config
	userRepo      authrepo.UserRepository
	ingestHandler *ingestDelivery.IngestHandler
	jobHandler    *jobDelivery.JobHandler
	notifHandler  *notification.Handler
}

func NewHandler(
	cfg *config.Config,
	userRepo authrepo.UserRepository,
	ingestUc ingestUsecasePkg.IngestUsecase,
	tracker *jobUsecasePkg.JobTracker,
	tokenRepo notification.DeviceTokenRepository,
) *Handler {
	var notifHandler *notification.Handler
	if tokenRepo != nil {
		notifHandler = notification.NewHandler(tokenRepo)
	}

	return &Handler{
		config:        cfg,
		userRepo:      userRepo,
		ingestHandler: ingestDelivery.NewIngestHandler(ingestUc),
		jobHandler:    jobDelivery.NewJobHandler(tracker),
		notifHandler:  notifHandler,
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.config, h.userRepo, h.ingestHandler, h.jobHandler, h.notifHandler)

	return r.Run(addr)
}
