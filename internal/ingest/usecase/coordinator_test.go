package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	authdomain "mailstream-backend/internal/auth/domain"
	ingestdomain "mailstream-backend/internal/ingest/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	mu               sync.Mutex
	users            map[string]*authdomain.User
	findByEmailCalls int
}

func newFakeUserRepo(users ...*authdomain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*authdomain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(user *authdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) FindByID(id string) (*authdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func (r *fakeUserRepo) FindByEmail(email string) (*authdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findByEmailCalls++
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) Update(user *authdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) ListConnected() ([]*authdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*authdomain.User
	for _, u := range r.users {
		if u.HasCredentials() {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeCursorRepo struct {
	mu      sync.Mutex
	cursors map[string]*ingestdomain.SyncCursor
	saveErr error
}

func newFakeCursorRepo() *fakeCursorRepo {
	return &fakeCursorRepo{cursors: make(map[string]*ingestdomain.SyncCursor)}
}

func (r *fakeCursorRepo) Get(userID, sourceName string) (*ingestdomain.SyncCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cursors[userID+"|"+sourceName]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (r *fakeCursorRepo) Save(cursor *ingestdomain.SyncCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	copied := *cursor
	r.cursors[cursor.UserID+"|"+cursor.SourceName] = &copied
	return nil
}

func (r *fakeCursorRepo) stored(userID string) *ingestdomain.SyncCursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursors[userID+"|"+ingestdomain.SourceGmail]
}

type fakeDocRepo struct {
	mu      sync.Mutex
	docs    map[string]*ingestdomain.IngestedDocument
	upserts int
	failFor map[string]error
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[string]*ingestdomain.IngestedDocument), failFor: make(map[string]error)}
}

func (r *fakeDocRepo) Upsert(doc *ingestdomain.IngestedDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if err, ok := r.failFor[doc.SourceID]; ok {
		return err
	}
	key := doc.UserID + "|" + doc.SourceType + "|" + doc.SourceID
	r.docs[key] = doc
	return nil
}

func (r *fakeDocRepo) Exists(userID, sourceType, sourceID string) (bool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[userID+"|"+sourceType+"|"+sourceID]
	if !ok {
		return false, false, nil
	}
	return true, len(doc.Embedding) > 0, nil
}

func (r *fakeDocRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

type fakeEmbedder struct {
	mu     sync.Mutex
	err    error
	vector []float32
}

func (e *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

func (e *fakeEmbedder) setError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

type fakeFetcher struct {
	bootstrapCursor string
	bootstrapErr    error
	changes         *ingestdomain.ChangeBatch
	changesErr      error
	items           map[string]*ingestdomain.RawEmail
	itemErrs        map[string]error
}

func (f *fakeFetcher) FetchBootstrapCursor(ctx context.Context, creds ingestdomain.Credentials, cb ingestdomain.TokenUpdateFunc) (string, error) {
	if f.bootstrapErr != nil {
		return "", f.bootstrapErr
	}
	return f.bootstrapCursor, nil
}

func (f *fakeFetcher) FetchChanges(ctx context.Context, creds ingestdomain.Credentials, cursor string, cb ingestdomain.TokenUpdateFunc) (*ingestdomain.ChangeBatch, error) {
	if f.changesErr != nil {
		return nil, f.changesErr
	}
	return f.changes, nil
}

func (f *fakeFetcher) FetchItem(ctx context.Context, creds ingestdomain.Credentials, itemID string, cb ingestdomain.TokenUpdateFunc) (*ingestdomain.RawEmail, error) {
	if err, ok := f.itemErrs[itemID]; ok {
		return nil, err
	}
	raw, ok := f.items[itemID]
	if !ok {
		return nil, fmt.Errorf("unknown item %s", itemID)
	}
	return raw, nil
}

func connectedUser() *authdomain.User {
	return &authdomain.User{
		ID:           "user-1",
		Email:        "person@example.com",
		Provider:     "google",
		AccessToken:  "at",
		RefreshToken: "rt",
	}
}

func unreadInboxMail(id string) *ingestdomain.RawEmail {
	return &ingestdomain.RawEmail{
		ID:         id,
		ThreadID:   "t-" + id,
		Subject:    "Hello",
		From:       "Sender <sender@example.com>",
		PlainBody:  "body of " + id,
		LabelIDs:   []string{"UNREAD", "INBOX"},
		ReceivedAt: time.Now(),
	}
}

func readMail(id string) *ingestdomain.RawEmail {
	raw := unreadInboxMail(id)
	raw.LabelIDs = []string{"INBOX"}
	return raw
}

func TestSyncBootstrapsOnFirstRun(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	docRepo := newFakeDocRepo()
	fetcher := &fakeFetcher{bootstrapCursor: "100"}

	uc := NewIngestUsecase(userRepo, cursorRepo, docRepo, fetcher, nil, nil, nil)

	res, err := uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, ingestdomain.SyncTypeInitial, res.SyncType)
	assert.True(t, res.IsFirstSync)
	assert.Equal(t, 0, res.Processed)
	assert.Nil(t, res.Error)

	stored := cursorRepo.stored("user-1")
	require.NotNil(t, stored)
	require.NotNil(t, stored.CursorToken)
	assert.Equal(t, "100", *stored.CursorToken)
	assert.True(t, stored.FirstSyncCompleted)
	assert.True(t, stored.SyncEnabled)
}

func TestSyncIncrementalProcessesAndSkips(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	token := "100"
	cursorRepo.Save(&ingestdomain.SyncCursor{
		ID: "c1", UserID: "user-1", SourceName: ingestdomain.SourceGmail,
		CursorToken: &token, SyncEnabled: true, FirstSyncCompleted: true,
	})
	docRepo := newFakeDocRepo()
	fetcher := &fakeFetcher{
		changes: &ingestdomain.ChangeBatch{
			NewCursor: "120",
			Added:     []ingestdomain.ItemRef{{ID: "m1"}, {ID: "m2"}},
		},
		items: map[string]*ingestdomain.RawEmail{
			"m1": unreadInboxMail("m1"),
			"m2": readMail("m2"),
		},
	}

	uc := NewIngestUsecase(userRepo, cursorRepo, docRepo, fetcher, nil, nil, nil)

	res, err := uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, ingestdomain.SyncTypeIncremental, res.SyncType)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Nil(t, res.Error)

	stored := cursorRepo.stored("user-1")
	assert.Equal(t, "120", *stored.CursorToken)
	assert.Equal(t, 1, stored.TotalSynced)
	assert.Equal(t, 1, docRepo.count())
}

func TestSyncReplayIsIdempotent(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	token := "100"
	cursorRepo.Save(&ingestdomain.SyncCursor{
		ID: "c1", UserID: "user-1", SourceName: ingestdomain.SourceGmail,
		CursorToken: &token, SyncEnabled: true, FirstSyncCompleted: true,
	})
	docRepo := newFakeDocRepo()
	fetcher := &fakeFetcher{
		changes: &ingestdomain.ChangeBatch{
			NewCursor: "120",
			Added:     []ingestdomain.ItemRef{{ID: "m1"}},
		},
		items: map[string]*ingestdomain.RawEmail{"m1": unreadInboxMail("m1")},
	}

	uc := NewIngestUsecase(userRepo, cursorRepo, docRepo, fetcher, nil, nil, nil)

	first, err := uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)

	// The provider re-reports the same item, as happens when a failure
	// elsewhere forces a replay. No duplicate row, no re-embedding.
	second, err := uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 1, second.Skipped)

	assert.Equal(t, 1, docRepo.count())
	assert.Equal(t, 1, docRepo.upserts)
}

func TestSyncAdvancesCursorWhenItemPersistFails(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	token := "100"
	cursorRepo.Save(&ingestdomain.SyncCursor{
		ID: "c1", UserID: "user-1", SourceName: ingestdomain.SourceGmail,
		CursorToken: &token, SyncEnabled: true, FirstSyncCompleted: true,
	})
	docRepo := newFakeDocRepo()
	docRepo.failFor["m2"] = errors.New("constraint violation")
	fetcher := &fakeFetcher{
		changes: &ingestdomain.ChangeBatch{
			NewCursor: "120",
			Added:     []ingestdomain.ItemRef{{ID: "m1"}, {ID: "m2"}},
		},
		items: map[string]*ingestdomain.RawEmail{
			"m1": unreadInboxMail("m1"),
			"m2": unreadInboxMail("m2"),
		},
	}

	uc := NewIngestUsecase(userRepo, cursorRepo, docRepo, fetcher, nil, nil, nil)

	res, err := uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	require.NotNil(t, res.Error)

	// The batch was fetched, so the position moves on regardless of the
	// bad item; replaying it later is idempotent through the upsert.
	stored := cursorRepo.stored("user-1")
	assert.Equal(t, "120", *stored.CursorToken)
	assert.Equal(t, 1, stored.TotalSynced)
	require.NotNil(t, stored.LastError)
}

func TestSyncKeepsMovingPastUnfetchableItem(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	token := "100"
	cursorRepo.Save(&ingestdomain.SyncCursor{
		ID: "c1", UserID: "user-1", SourceName: ingestdomain.SourceGmail,
		CursorToken: &token, SyncEnabled: true, FirstSyncCompleted: true,
	})
	docRepo := newFakeDocRepo()
	fetcher := &fakeFetcher{
		changes: &ingestdomain.ChangeBatch{
			NewCursor: "120",
			Added:     []ingestdomain.ItemRef{{ID: "gone"}},
		},
		itemErrs: map[string]error{
			// A message deleted upstream never becomes fetchable again.
			"gone": ingestdomain.NewProviderError(ingestdomain.ProviderErrTransient, errors.New("404")),
		},
	}

	uc := NewIngestUsecase(userRepo, cursorRepo, docRepo, fetcher, nil, nil, nil)

	for i := 0; i < 3; i++ {
		res, err := uc.Sync(context.Background(), "user-1", false)
		require.NoError(t, err)
		require.NotNil(t, res.Error)
	}

	// The account is not wedged behind the dead item.
	stored := cursorRepo.stored("user-1")
	assert.Equal(t, "120", *stored.CursorToken)
	require.NotNil(t, stored.LastError)
}

func TestSyncHoldsCursorOnBatchFetchFailure(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	token := "100"
	cursorRepo.Save(&ingestdomain.SyncCursor{
		ID: "c1", UserID: "user-1", SourceName: ingestdomain.SourceGmail,
		CursorToken: &token, SyncEnabled: true, FirstSyncCompleted: true,
	})
	fetcher := &fakeFetcher{
		changesErr: ingestdomain.NewProviderError(ingestdomain.ProviderErrTransient, errors.New("connection reset")),
	}

	uc := NewIngestUsecase(userRepo, cursorRepo, newFakeDocRepo(), fetcher, nil, nil, nil)

	res, err := uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	require.NotNil(t, res.Error)

	// Nothing was fetched, so the next run retries the same position.
	stored := cursorRepo.stored("user-1")
	assert.Equal(t, "100", *stored.CursorToken)
	assert.Equal(t, 1, stored.ErrorCount)
	require.NotNil(t, stored.LastError)
}

func TestSyncReembedsDocumentStoredWithoutVector(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	token := "100"
	cursorRepo.Save(&ingestdomain.SyncCursor{
		ID: "c1", UserID: "user-1", SourceName: ingestdomain.SourceGmail,
		CursorToken: &token, SyncEnabled: true, FirstSyncCompleted: true,
	})
	docRepo := newFakeDocRepo()
	fetcher := &fakeFetcher{
		changes: &ingestdomain.ChangeBatch{
			NewCursor: "120",
			Added:     []ingestdomain.ItemRef{{ID: "m1"}},
		},
		items: map[string]*ingestdomain.RawEmail{"m1": unreadInboxMail("m1")},
	}
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	embedder.setError(errors.New("model overloaded"))

	uc := NewIngestUsecase(userRepo, cursorRepo, docRepo, fetcher, nil, embedder, nil)

	// The embedding outage degrades the item to a vector-less row.
	first, err := uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)

	// Once the model recovers, a replay of the same item re-embeds it
	// instead of being skipped as already ingested.
	embedder.setError(nil)
	second, err := uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, 0, second.Skipped)

	assert.Equal(t, 1, docRepo.count())
	assert.Equal(t, 2, docRepo.upserts)

	docRepo.mu.Lock()
	doc := docRepo.docs["user-1|"+ingestdomain.SourceGmail+"|m1"]
	docRepo.mu.Unlock()
	require.NotNil(t, doc)
	assert.NotEmpty(t, doc.Embedding)
}

func TestSyncRebootstrapsOnExpiredCursor(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	token := "100"
	cursorRepo.Save(&ingestdomain.SyncCursor{
		ID: "c1", UserID: "user-1", SourceName: ingestdomain.SourceGmail,
		CursorToken: &token, SyncEnabled: true, FirstSyncCompleted: true,
	})
	fetcher := &fakeFetcher{
		changesErr:      ingestdomain.NewProviderError(ingestdomain.ProviderErrInvalidCursor, errors.New("404")),
		bootstrapCursor: "500",
	}

	uc := NewIngestUsecase(userRepo, cursorRepo, newFakeDocRepo(), fetcher, nil, nil, nil)

	res, err := uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, ingestdomain.SyncTypeInitial, res.SyncType)
	assert.False(t, res.IsFirstSync)
	assert.Nil(t, res.Error)

	stored := cursorRepo.stored("user-1")
	assert.Equal(t, "500", *stored.CursorToken)
}

func TestSyncDisablesAccountOnRevokedAuth(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	token := "100"
	cursorRepo.Save(&ingestdomain.SyncCursor{
		ID: "c1", UserID: "user-1", SourceName: ingestdomain.SourceGmail,
		CursorToken: &token, SyncEnabled: true, FirstSyncCompleted: true,
	})
	fetcher := &fakeFetcher{
		changesErr: ingestdomain.NewProviderError(ingestdomain.ProviderErrAuthRevoked, errors.New("invalid_grant")),
	}

	uc := NewIngestUsecase(userRepo, cursorRepo, newFakeDocRepo(), fetcher, nil, nil, nil)

	res, err := uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	require.NotNil(t, res.Error)

	stored := cursorRepo.stored("user-1")
	assert.False(t, stored.SyncEnabled)
	assert.Equal(t, "100", *stored.CursorToken)

	// And subsequent scheduled runs refuse to touch the account.
	res, err = uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Contains(t, *res.Error, "disabled")
}

func TestSyncRateLimitLeavesCursorAndCountersAlone(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	token := "100"
	cursorRepo.Save(&ingestdomain.SyncCursor{
		ID: "c1", UserID: "user-1", SourceName: ingestdomain.SourceGmail,
		CursorToken: &token, SyncEnabled: true, FirstSyncCompleted: true,
	})
	fetcher := &fakeFetcher{
		changesErr: ingestdomain.NewProviderError(ingestdomain.ProviderErrRateLimited, errors.New("429")),
	}

	uc := NewIngestUsecase(userRepo, cursorRepo, newFakeDocRepo(), fetcher, nil, nil, nil)

	res, err := uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	require.NotNil(t, res.Error)

	stored := cursorRepo.stored("user-1")
	assert.Equal(t, "100", *stored.CursorToken)
	assert.Equal(t, 0, stored.ErrorCount)
}

func TestSyncWithoutCredentialsIsNotAnError(t *testing.T) {
	user := connectedUser()
	user.AccessToken = ""
	user.RefreshToken = ""
	userRepo := newFakeUserRepo(user)

	uc := NewIngestUsecase(userRepo, newFakeCursorRepo(), newFakeDocRepo(), &fakeFetcher{}, nil, nil, nil)

	res, err := uc.Sync(context.Background(), "user-1", false)
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, 0, res.Processed)
}

func TestForceFullSyncRebootstrapsAndReenables(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	token := "100"
	lastErr := "authorization revoked"
	cursorRepo.Save(&ingestdomain.SyncCursor{
		ID: "c1", UserID: "user-1", SourceName: ingestdomain.SourceGmail,
		CursorToken: &token, SyncEnabled: false, FirstSyncCompleted: true,
		ErrorCount: 3, LastError: &lastErr,
	})
	fetcher := &fakeFetcher{bootstrapCursor: "900"}

	uc := NewIngestUsecase(userRepo, cursorRepo, newFakeDocRepo(), fetcher, nil, nil, nil)

	res, err := uc.Sync(context.Background(), "user-1", true)
	require.NoError(t, err)
	assert.Equal(t, ingestdomain.SyncTypeInitial, res.SyncType)
	assert.Nil(t, res.Error)

	stored := cursorRepo.stored("user-1")
	assert.Equal(t, "900", *stored.CursorToken)
	assert.True(t, stored.SyncEnabled)
	assert.Equal(t, 0, stored.ErrorCount)
	assert.Nil(t, stored.LastError)
}

func TestStatusReflectsCursorState(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	token := "100"
	now := time.Now()
	cursorRepo.Save(&ingestdomain.SyncCursor{
		ID: "c1", UserID: "user-1", SourceName: ingestdomain.SourceGmail,
		CursorToken: &token, SyncEnabled: true, FirstSyncCompleted: true,
		LastSyncAt: &now, TotalSynced: 42,
	})

	uc := NewIngestUsecase(userRepo, cursorRepo, newFakeDocRepo(), &fakeFetcher{}, nil, nil, nil)

	status, err := uc.Status("user-1")
	require.NoError(t, err)
	assert.True(t, status.HasCredentials)
	assert.True(t, status.SyncEnabled)
	assert.True(t, status.FirstSyncCompleted)
	assert.Equal(t, 42, status.TotalSynced)
}

func TestStatusBeforeFirstSync(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())

	uc := NewIngestUsecase(userRepo, newFakeCursorRepo(), newFakeDocRepo(), &fakeFetcher{}, nil, nil, nil)

	status, err := uc.Status("user-1")
	require.NoError(t, err)
	assert.True(t, status.HasCredentials)
	assert.False(t, status.FirstSyncCompleted)
	assert.Equal(t, 0, status.TotalSynced)
}

func TestHandleNotificationDropsDuplicates(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())

	uc := NewIngestUsecase(userRepo, newFakeCursorRepo(), newFakeDocRepo(), &fakeFetcher{bootstrapCursor: "100"}, nil, nil, nil)

	uc.HandleNotification("person@example.com", 500)
	uc.HandleNotification("person@example.com", 500)
	uc.HandleNotification("person@example.com", 400)

	userRepo.mu.Lock()
	calls := userRepo.findByEmailCalls
	userRepo.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestHandleNotificationRetriesAfterFailedSync(t *testing.T) {
	userRepo := newFakeUserRepo(connectedUser())
	cursorRepo := newFakeCursorRepo()
	token := "100"
	cursorRepo.Save(&ingestdomain.SyncCursor{
		ID: "c1", UserID: "user-1", SourceName: ingestdomain.SourceGmail,
		CursorToken: &token, SyncEnabled: true, FirstSyncCompleted: true,
	})
	fetcher := &fakeFetcher{
		changesErr: ingestdomain.NewProviderError(ingestdomain.ProviderErrTransient, errors.New("connection reset")),
	}

	uc := NewIngestUsecase(userRepo, cursorRepo, newFakeDocRepo(), fetcher, nil, nil, nil)

	uc.HandleNotification("person@example.com", 200)

	// The sync behind the first notification fails, so a redelivery of
	// the same position must be accepted again rather than dropped.
	require.Eventually(t, func() bool {
		uc.HandleNotification("person@example.com", 200)
		userRepo.mu.Lock()
		defer userRepo.mu.Unlock()
		return userRepo.findByEmailCalls >= 2
	}, time.Second, 10*time.Millisecond)
}
