package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	authdomain "mailstream-backend/internal/auth/domain"
	authrepo "mailstream-backend/internal/auth/repository"
	ingestdomain "mailstream-backend/internal/ingest/domain"
	ingestrepo "mailstream-backend/internal/ingest/repository"
	"mailstream-backend/pkg/ai"
	"mailstream-backend/pkg/classify"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/datatypes"
)

type ingestUsecase struct {
	userRepo    authrepo.UserRepository
	cursorRepo  ingestrepo.SyncCursorRepository
	docRepo     ingestrepo.DocumentRepository
	fetcher     ingestdomain.ChangeFetcher
	policy      classify.Policy
	embedder    ai.Embedder // nil when embedding is not configured
	vectorStore VectorStore // nil when the vector database is not configured
	watchFn     WatchFunc   // nil when push notifications are not configured

	// lastHistoryID drops duplicate push notifications. Pub/Sub is
	// at-least-once and Gmail re-announces the same position freely.
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewIngestUsecase(
	userRepo authrepo.UserRepository,
	cursorRepo ingestrepo.SyncCursorRepository,
	docRepo ingestrepo.DocumentRepository,
	fetcher ingestdomain.ChangeFetcher,
	policy classify.Policy,
	embedder ai.Embedder,
	vectorStore VectorStore,
) IngestUsecase {
	if policy == nil {
		policy = classify.DefaultPolicy
	}
	return &ingestUsecase{
		userRepo:      userRepo,
		cursorRepo:    cursorRepo,
		docRepo:       docRepo,
		fetcher:       fetcher,
		policy:        policy,
		embedder:      embedder,
		vectorStore:   vectorStore,
		lastHistoryID: make(map[string]uint64),
	}
}

func (u *ingestUsecase) SetWatchFunc(fn WatchFunc) {
	u.watchFn = fn
}

func (u *ingestUsecase) Sync(ctx context.Context, userID string, forceFullSync bool) (*ingestdomain.IngestionRunResult, error) {
	start := time.Now()

	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	if !user.HasCredentials() {
		// A disconnected account is a normal state, not a failure.
		return resultWithError(ingestdomain.SyncTypeIncremental, "mail provider not connected", start), nil
	}

	cursor, err := u.cursorRepo.Get(userID, ingestdomain.SourceGmail)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync cursor: %w", err)
	}
	if cursor == nil {
		cursor = &ingestdomain.SyncCursor{
			ID:          uuid.New().String(),
			UserID:      userID,
			SourceName:  ingestdomain.SourceGmail,
			SyncEnabled: true,
		}
	}

	if !cursor.SyncEnabled && !forceFullSync {
		return resultWithError(ingestdomain.SyncTypeIncremental, "sync is disabled for this account", start), nil
	}

	creds := ingestdomain.Credentials{
		UserID:       user.ID,
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
	}
	onTokenRefresh := u.makeTokenUpdateCallback(user)

	// A run with no usable cursor establishes position only; the
	// pre-existing backlog is out of scope for incremental ingestion.
	if cursor.CursorToken == nil || forceFullSync {
		return u.bootstrap(ctx, cursor, creds, onTokenRefresh, start)
	}

	batch, err := u.fetcher.FetchChanges(ctx, creds, *cursor.CursorToken, onTokenRefresh)
	if err != nil {
		switch {
		case ingestdomain.IsInvalidCursor(err):
			// The provider no longer remembers our position. Start over
			// from its current one rather than failing the account.
			log.Printf("[Ingest] Cursor expired for user %s, re-bootstrapping: %v", userID, err)
			return u.bootstrap(ctx, cursor, creds, onTokenRefresh, start)
		case ingestdomain.IsRateLimited(err):
			// Deferred, not failed. Leave counters alone so one noisy
			// hour does not look like a broken account.
			log.Printf("[Ingest] Rate limited for user %s, deferring to next run", userID)
			return resultWithError(ingestdomain.SyncTypeIncremental, err.Error(), start), nil
		case ingestdomain.IsAuthRevoked(err):
			return u.disableSync(cursor, err, start)
		default:
			return u.recordFailure(cursor, ingestdomain.SyncTypeIncremental, err, start)
		}
	}

	processed, skipped, failed := u.ingestBatch(ctx, creds, onTokenRefresh, batch.Added)

	// The cursor advances whenever the batch itself was fetched. Item
	// failures are counted, not blocking: replaying a change is already
	// idempotent through the source_id upsert, and holding the position
	// for one permanently bad item would starve the whole account.
	now := time.Now()
	cursor.CursorToken = &batch.NewCursor
	cursor.FirstSyncCompleted = true
	cursor.LastSyncAt = &now
	cursor.TotalSynced += processed

	res := &ingestdomain.IngestionRunResult{
		Processed:  processed,
		Skipped:    skipped,
		SyncType:   ingestdomain.SyncTypeIncremental,
		LastSyncAt: &now,
	}

	if failed > 0 {
		msg := fmt.Sprintf("%d of %d items failed", failed, len(batch.Added))
		cursor.LastError = &msg
		res.Skipped += failed
		res.Error = &msg
	} else {
		cursor.ErrorCount = 0
		cursor.LastError = nil
	}

	if err := u.cursorRepo.Save(cursor); err != nil {
		return nil, fmt.Errorf("failed to save sync cursor: %w", err)
	}

	log.Printf("[Ingest] Sync complete for user %s: %d processed, %d skipped, %d failed, cursor=%s",
		userID, processed, skipped, failed, batch.NewCursor)

	res.DurationMs = time.Since(start).Milliseconds()
	return res, nil
}

// bootstrap records the provider's current change-log position without
// ingesting anything, completing the first (or forced) sync.
func (u *ingestUsecase) bootstrap(ctx context.Context, cursor *ingestdomain.SyncCursor, creds ingestdomain.Credentials, onTokenRefresh ingestdomain.TokenUpdateFunc, start time.Time) (*ingestdomain.IngestionRunResult, error) {
	isFirst := !cursor.FirstSyncCompleted

	token, err := u.fetcher.FetchBootstrapCursor(ctx, creds, onTokenRefresh)
	if err != nil {
		switch {
		case ingestdomain.IsAuthRevoked(err):
			return u.disableSync(cursor, err, start)
		case ingestdomain.IsRateLimited(err):
			return resultWithError(ingestdomain.SyncTypeInitial, err.Error(), start), nil
		default:
			return u.recordFailure(cursor, ingestdomain.SyncTypeInitial, err, start)
		}
	}

	now := time.Now()
	cursor.CursorToken = &token
	cursor.SyncEnabled = true
	cursor.FirstSyncCompleted = true
	cursor.LastSyncAt = &now
	cursor.ErrorCount = 0
	cursor.LastError = nil
	if err := u.cursorRepo.Save(cursor); err != nil {
		return nil, fmt.Errorf("failed to save sync cursor: %w", err)
	}

	log.Printf("[Ingest] Bootstrapped user %s at cursor %s", cursor.UserID, token)

	// Best effort: a failed watch registration only means the account
	// waits for the scheduler instead of reacting to pushes.
	if u.watchFn != nil {
		if err := u.watchFn(ctx, creds, onTokenRefresh); err != nil {
			log.Printf("[Ingest] Watch registration failed for user %s: %v", cursor.UserID, err)
		}
	}

	return &ingestdomain.IngestionRunResult{
		SyncType:    ingestdomain.SyncTypeInitial,
		DurationMs:  time.Since(start).Milliseconds(),
		IsFirstSync: isFirst,
		LastSyncAt:  &now,
	}, nil
}

// ingestBatch processes one change batch item by item. An item that the
// policy rejects counts as skipped; an item that cannot be fetched or
// persisted counts as failed. Embedding and vector-store trouble degrade
// the item, never fail it.
func (u *ingestUsecase) ingestBatch(ctx context.Context, creds ingestdomain.Credentials, onTokenRefresh ingestdomain.TokenUpdateFunc, added []ingestdomain.ItemRef) (processed, skipped, failed int) {
	for _, ref := range added {
		// Already-ingested items are skipped before any provider or
		// embedding work; the unique constraint stays as the backstop
		// for the races this check cannot see. A document stored without
		// a vector while an embedder is configured is re-processed, so
		// an embedding outage heals when the item is replayed.
		if exists, embedded, err := u.docRepo.Exists(creds.UserID, ingestdomain.SourceGmail, ref.ID); err == nil && exists && (embedded || u.embedder == nil) {
			skipped++
			continue
		}

		raw, err := u.fetcher.FetchItem(ctx, creds, ref.ID, onTokenRefresh)
		if err != nil {
			log.Printf("[Ingest] Failed to fetch item %s for user %s: %v", ref.ID, creds.UserID, err)
			failed++
			continue
		}

		if !u.policy(raw) {
			skipped++
			continue
		}

		doc := classify.Normalize(raw)

		var vector []float32
		if u.embedder != nil && doc.Content != "" {
			vector, err = u.embedder.EmbedText(ctx, doc.Content)
			if err != nil {
				log.Printf("[Ingest] Failed to embed item %s for user %s, storing without vector: %v", ref.ID, creds.UserID, err)
				vector = nil
			}
		}

		row := &ingestdomain.IngestedDocument{
			ID:         uuid.New().String(),
			UserID:     creds.UserID,
			SourceType: ingestdomain.SourceGmail,
			SourceID:   raw.ID,
			Content:    doc.Content,
			Metadata:   datatypes.JSONMap(doc.Metadata),
		}
		if len(vector) > 0 {
			if encoded, err := json.Marshal(vector); err == nil {
				row.Embedding = datatypes.JSON(encoded)
			}
		}

		if err := u.docRepo.Upsert(row); err != nil {
			log.Printf("[Ingest] Failed to persist item %s for user %s: %v", ref.ID, creds.UserID, err)
			failed++
			continue
		}

		if u.vectorStore != nil {
			docKey := fmt.Sprintf("%s:%s:%s", creds.UserID, ingestdomain.SourceGmail, raw.ID)
			if err := u.vectorStore.UpsertDocument(ctx, docKey, creds.UserID, ingestdomain.SourceGmail, doc.Content, vector, doc.Metadata); err != nil {
				log.Printf("[Ingest] Failed to mirror item %s to vector store: %v", ref.ID, err)
			}
		}

		processed++
	}
	return processed, skipped, failed
}

// disableSync turns the account's sync off after a revoked grant. The
// user has to reconnect before any further runs happen.
func (u *ingestUsecase) disableSync(cursor *ingestdomain.SyncCursor, cause error, start time.Time) (*ingestdomain.IngestionRunResult, error) {
	log.Printf("[Ingest] Authorization revoked for user %s, disabling sync: %v", cursor.UserID, cause)

	msg := cause.Error()
	cursor.SyncEnabled = false
	cursor.ErrorCount++
	cursor.LastError = &msg
	if err := u.cursorRepo.Save(cursor); err != nil {
		return nil, fmt.Errorf("failed to save sync cursor: %w", err)
	}

	return resultWithError(ingestdomain.SyncTypeIncremental, msg, start), nil
}

// recordFailure bumps the error counters without moving the cursor.
func (u *ingestUsecase) recordFailure(cursor *ingestdomain.SyncCursor, syncType string, cause error, start time.Time) (*ingestdomain.IngestionRunResult, error) {
	msg := cause.Error()
	cursor.ErrorCount++
	cursor.LastError = &msg
	if err := u.cursorRepo.Save(cursor); err != nil {
		return nil, fmt.Errorf("failed to save sync cursor: %w", err)
	}

	return resultWithError(syncType, msg, start), nil
}

func resultWithError(syncType, msg string, start time.Time) *ingestdomain.IngestionRunResult {
	return &ingestdomain.IngestionRunResult{
		SyncType:   syncType,
		Error:      &msg,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func (u *ingestUsecase) Status(userID string) (*ingestdomain.SyncStatus, error) {
	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	status := &ingestdomain.SyncStatus{
		HasCredentials: user.HasCredentials(),
	}

	cursor, err := u.cursorRepo.Get(userID, ingestdomain.SourceGmail)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync cursor: %w", err)
	}
	if cursor != nil {
		status.SyncEnabled = cursor.SyncEnabled
		status.FirstSyncCompleted = cursor.FirstSyncCompleted
		status.LastSyncAt = cursor.LastSyncAt
		status.TotalSynced = cursor.TotalSynced
		status.ErrorCount = cursor.ErrorCount
		status.LastError = cursor.LastError
	}

	return status, nil
}

func (u *ingestUsecase) HandleNotification(emailAddress string, historyID uint64) {
	u.mu.Lock()
	last, seen := u.lastHistoryID[emailAddress]
	if seen && historyID <= last {
		u.mu.Unlock()
		log.Printf("[Ingest] Skipping duplicate notification for %s (historyId %d <= %d)", emailAddress, historyID, last)
		return
	}
	u.lastHistoryID[emailAddress] = historyID
	u.mu.Unlock()

	user, err := u.userRepo.FindByEmail(emailAddress)
	if err != nil || user == nil {
		log.Printf("[Ingest] Notification for unknown mailbox %s: %v", emailAddress, err)
		return
	}

	go func() {
		res, err := u.Sync(context.Background(), user.ID, false)
		if err != nil || (res != nil && res.Error != nil) {
			// Roll the watermark back so the provider's redelivery of
			// this position retries instead of waiting for the scheduler.
			u.mu.Lock()
			if u.lastHistoryID[emailAddress] == historyID {
				u.lastHistoryID[emailAddress] = last
			}
			u.mu.Unlock()
			if err != nil {
				log.Printf("[Ingest] Notification-triggered sync failed for user %s: %v", user.ID, err)
			}
		}
	}()
}

// makeTokenUpdateCallback persists refreshed OAuth tokens so the next
// run starts from the new access token.
func (u *ingestUsecase) makeTokenUpdateCallback(user *authdomain.User) ingestdomain.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		user.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			user.RefreshToken = token.RefreshToken
		}
		user.TokenExpiry = token.Expiry
		return u.userRepo.Update(user)
	}
}
