package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	JWTSecret string

	DatabaseURL string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleProjectID    string
	GooglePubSubTopic  string
	GoogleCredentials  string

	FirebaseCredentials string

	ChromaAPIKey   string
	ChromaTenant   string
	ChromaDatabase string
	GeminiApiKey   string

	SyncInterval   time.Duration
	ClientCacheTTL time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	syncInterval := 5 * time.Minute
	if v := os.Getenv("SYNC_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			syncInterval = parsed
		}
	}

	cacheTTL := 10 * time.Minute
	if v := os.Getenv("CLIENT_CACHE_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cacheTTL = parsed
		}
	}

	return &Config{
		Port:                getEnv("PORT", "8080"),
		JWTSecret:           getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		DatabaseURL:         getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=mailstream port=5432 sslmode=disable"),
		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleProjectID:     getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:   getEnv("GOOGLE_PUBSUB_TOPIC", "gmail-updates"),
		GoogleCredentials:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		ChromaAPIKey:        getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:        getEnv("CHROMA_TENANT", ""),
		ChromaDatabase:      getEnv("CHROMA_DATABASE", ""),
		GeminiApiKey:        getEnv("GEMINI_API_KEY", ""),
		SyncInterval:        syncInterval,
		ClientCacheTTL:      cacheTTL,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
