package domain

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is invoked when the provider refreshes an access token,
// so the new token can be persisted before the old one stops working.
type TokenUpdateFunc = func(token *oauth2.Token) error

// Credentials carries provider tokens for one user.
type Credentials struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// ItemRef points at a remote item reported by the change log.
type ItemRef struct {
	ID string
}

// ChangeBatch is the result of one change-log query: everything added
// since the input cursor, plus the provider's new position.
type ChangeBatch struct {
	NewCursor string
	Added     []ItemRef
}

// RawEmail is the provider-shape item before classification. Body parts
// are kept separate so the classifier can apply its preference order.
type RawEmail struct {
	ID         string
	ThreadID   string
	Subject    string
	From       string
	Snippet    string
	PlainBody  string
	HTMLBody   string
	LabelIDs   []string
	ReceivedAt time.Time
}

// ChangeFetcher is the remote mail provider seen through the change-log
// lens. Implementations must classify failures with the ProviderError
// taxonomy so the coordinator can distinguish an expired cursor from a
// rate limit or a revoked grant.
type ChangeFetcher interface {
	// FetchBootstrapCursor returns the provider's current change-log
	// position without fetching any historical content.
	FetchBootstrapCursor(ctx context.Context, creds Credentials, onTokenRefresh TokenUpdateFunc) (string, error)

	// FetchChanges returns all additions since cursor and the new cursor.
	FetchChanges(ctx context.Context, creds Credentials, cursor string, onTokenRefresh TokenUpdateFunc) (*ChangeBatch, error)

	// FetchItem retrieves the full content of one remote item.
	FetchItem(ctx context.Context, creds Credentials, itemID string, onTokenRefresh TokenUpdateFunc) (*RawEmail, error)
}
