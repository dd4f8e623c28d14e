package usecase

import (
	"context"

	ingestdomain "mailstream-backend/internal/ingest/domain"
)

// IngestUsecase drives incremental mailbox ingestion for one user at a
// time: read the cursor, pull changes, classify, embed, persist, then
// advance the cursor.
type IngestUsecase interface {
	// Sync runs one ingestion pass for the user. forceFullSync discards
	// the stored cursor and re-bootstraps from the provider's current
	// position. The returned result always describes what happened, even
	// when the run failed partway.
	Sync(ctx context.Context, userID string, forceFullSync bool) (*ingestdomain.IngestionRunResult, error)

	// Status returns the user's current sync state for display.
	Status(userID string) (*ingestdomain.SyncStatus, error)

	// HandleNotification reacts to a provider push notification by
	// scheduling a background sync for the mailbox owner. Duplicate
	// notifications for the same history position are dropped.
	HandleNotification(emailAddress string, historyID uint64)

	// SetWatchFunc installs the provider watch registration called
	// after a successful bootstrap. Optional; without it the account
	// relies on the scheduler alone.
	SetWatchFunc(fn WatchFunc)
}

// WatchFunc registers for provider push notifications for one user.
type WatchFunc func(ctx context.Context, creds ingestdomain.Credentials, onTokenRefresh ingestdomain.TokenUpdateFunc) error

// VectorStore mirrors ingested documents into the vector database.
// Kept optional: ingestion proceeds without it when unconfigured.
type VectorStore interface {
	UpsertDocument(ctx context.Context, docKey, userID, sourceType, content string, embedding []float32, metadata map[string]interface{}) error
}
