package main

import (
	"context"
	"log"
	"strings"

	api "mailstream-backend/cmd/api"
	authdomain "mailstream-backend/internal/auth/domain"
	authRepo "mailstream-backend/internal/auth/repository"
	ingestdomain "mailstream-backend/internal/ingest/domain"
	ingestRepo "mailstream-backend/internal/ingest/repository"
	ingestScheduler "mailstream-backend/internal/ingest/scheduler"
	ingestUsecase "mailstream-backend/internal/ingest/usecase"
	jobdomain "mailstream-backend/internal/job/domain"
	jobRepo "mailstream-backend/internal/job/repository"
	jobUsecase "mailstream-backend/internal/job/usecase"
	"mailstream-backend/internal/notification"
	"mailstream-backend/pkg/ai"
	"mailstream-backend/pkg/chroma"
	"mailstream-backend/pkg/classify"
	"mailstream-backend/pkg/config"
	"mailstream-backend/pkg/database"
	"mailstream-backend/pkg/fcm"
	"mailstream-backend/pkg/gmail"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&ingestdomain.SyncCursor{},
		&ingestdomain.IngestedDocument{},
		&jobdomain.Job{},
		&notification.DeviceToken{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	cursorRepo := ingestRepo.NewSyncCursorRepository(db)
	docRepo := ingestRepo.NewDocumentRepository(db)
	jobRepository := jobRepo.NewJobRepository(db)
	tokenRepo := notification.NewDeviceTokenRepository(db)

	// Initialize Gmail service
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.ClientCacheTTL)
	defer gmailService.Close()

	// Initialize embedder (optional)
	var embedder ai.Embedder
	if cfg.GeminiApiKey != "" {
		geminiEmbedder, err := ai.NewGeminiEmbedder(cfg.GeminiApiKey)
		if err != nil {
			log.Printf("[WARN] Failed to initialize embedder (documents stored without vectors): %v", err)
		} else {
			embedder = geminiEmbedder
		}
	} else {
		log.Println("[WARN] GEMINI_API_KEY not set, documents stored without vectors")
	}

	// Initialize vector store (optional)
	var vectorStore ingestUsecase.VectorStore
	if cfg.ChromaAPIKey != "" {
		store, err := chroma.NewVectorStore(cfg)
		if err != nil {
			log.Printf("[WARN] Failed to initialize vector store (semantic mirror disabled): %v", err)
		} else {
			vectorStore = store
		}
	} else {
		log.Println("[WARN] CHROMA_API_KEY not set, semantic mirror disabled")
	}

	// Initialize ingestion engine
	ingestUc := ingestUsecase.NewIngestUsecase(
		userRepo,
		cursorRepo,
		docRepo,
		gmailService,
		classify.DefaultPolicy,
		embedder,
		vectorStore,
	)

	// Register Gmail watch after each bootstrap when a topic is configured
	if cfg.GoogleProjectID != "" && cfg.GooglePubSubTopic != "" {
		watchTopic := cfg.GooglePubSubTopic
		if !strings.Contains(watchTopic, "/") {
			watchTopic = "projects/" + cfg.GoogleProjectID + "/topics/" + watchTopic
		}
		ingestUc.SetWatchFunc(func(ctx context.Context, creds ingestdomain.Credentials, onTokenRefresh ingestdomain.TokenUpdateFunc) error {
			return gmailService.Watch(ctx, creds, watchTopic, onTokenRefresh)
		})
	}

	// Initialize FCM client (optional)
	var fcmClient *fcm.Client
	if cfg.FirebaseCredentials != "" {
		fcmClient, err = fcm.NewClient(cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
		}
	} else {
		log.Println("[WARN] No Firebase credentials configured, FCM disabled")
	}
	notifier := notification.NewNotifier(fcmClient, tokenRepo)

	// Initialize Pub/Sub pull service when a project is configured
	if cfg.GoogleProjectID != "" {
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}
		if topicName == "" {
			topicName = "gmail-updates"
		}

		pubsubService, err := notification.NewPubSubService(cfg.GoogleProjectID, topicName, cfg.GoogleCredentials, userRepo, ingestUc, notifier)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize Pub/Sub service: %v", err)
		} else {
			go pubsubService.Start(context.Background())
		}
	} else {
		log.Println("[WARN] GOOGLE_PROJECT_ID not configured, Pub/Sub notifications disabled")
	}

	// Initialize job tracker and runners
	tracker := jobUsecase.NewJobTracker(jobRepository)
	installer := jobUsecase.NewWorkspaceTemplateInstaller(userRepo, gmailService)
	tracker.RegisterRunner(jobUsecase.KindWorkspaceTemplate, installer.Run)
	tracker.OnFinished(func(userID string, job *jobdomain.Job) {
		notifier.NotifyJobFinished(context.Background(), userID, job)
	})

	// Start background sync scheduler
	syncScheduler := ingestScheduler.NewSyncScheduler(userRepo, ingestUc, cfg.SyncInterval)
	syncScheduler.Start()
	defer syncScheduler.Stop()

	// Initialize HTTP handler
	handler := api.NewHandler(cfg, userRepo, ingestUc, tracker, tokenRepo)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
