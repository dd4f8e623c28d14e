package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mailstream-backend/internal/ingest/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc = domain.TokenUpdateFunc

// Service talks to the Gmail API on behalf of connected users. It
// implements domain.ChangeFetcher on top of the history endpoint, plus
// the label and watch operations the rest of the app needs.
type Service struct {
	clientID     string
	clientSecret string
	cache        *clientCache
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		// Block on the callback so the refreshed token is persisted
		// before anything depends on it.
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string, clientTTL time.Duration) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		cache:        newClientCache(clientTTL),
	}
}

// Close stops the client cache's background sweeper.
func (s *Service) Close() {
	s.cache.close()
}

// getService returns a Gmail client for the user, reusing a cached one
// when the access token has not changed.
func (s *Service) getService(ctx context.Context, creds domain.Credentials, onTokenRefresh TokenUpdateFunc) (*gmailapi.Service, error) {
	key := cacheKey(creds.UserID, creds.AccessToken)
	if srv, ok := s.cache.get(key); ok {
		return srv, nil
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if creds.RefreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	tokenSource := config.TokenSource(ctx, token)

	// Wrap token source to detect refreshes
	wrappedSource := &notifyTokenSource{
		src:      tokenSource,
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmailapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}

	s.cache.put(key, srv)
	return srv, nil
}

// FetchBootstrapCursor asks Gmail for the mailbox's current history
// position without touching any message content.
func (s *Service) FetchBootstrapCursor(ctx context.Context, creds domain.Credentials, onTokenRefresh TokenUpdateFunc) (string, error) {
	srv, err := s.getService(ctx, creds, onTokenRefresh)
	if err != nil {
		return "", classifyError(err)
	}

	profile, err := srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", classifyError(err)
	}

	return strconv.FormatUint(profile.HistoryId, 10), nil
}

// FetchChanges lists every message added to the mailbox since cursor.
// Gmail expires history IDs after roughly a week; that surfaces as a 404
// and is reported as an invalid-cursor error so the caller can bootstrap.
func (s *Service) FetchChanges(ctx context.Context, creds domain.Credentials, cursor string, onTokenRefresh TokenUpdateFunc) (*domain.ChangeBatch, error) {
	startHistoryID, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, domain.NewProviderError(domain.ProviderErrInvalidCursor, fmt.Errorf("malformed history id %q: %w", cursor, err))
	}

	srv, err := s.getService(ctx, creds, onTokenRefresh)
	if err != nil {
		return nil, classifyError(err)
	}

	seen := make(map[string]struct{})
	added := make([]domain.ItemRef, 0)
	newCursor := cursor
	pageToken := ""

	for {
		call := srv.Users.History.List("me").
			StartHistoryId(startHistoryID).
			HistoryTypes("messageAdded").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, classifyError(err)
		}

		// The response carries the mailbox's current history id even
		// when the list itself is empty.
		if resp.HistoryId > 0 {
			newCursor = strconv.FormatUint(resp.HistoryId, 10)
		}

		for _, h := range resp.History {
			for _, ma := range h.MessagesAdded {
				if ma.Message == nil {
					continue
				}
				// The same message can appear in several history
				// records; report it once.
				if _, dup := seen[ma.Message.Id]; dup {
					continue
				}
				seen[ma.Message.Id] = struct{}{}
				added = append(added, domain.ItemRef{ID: ma.Message.Id})
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return &domain.ChangeBatch{
		NewCursor: newCursor,
		Added:     added,
	}, nil
}

// FetchItem retrieves one message in full.
func (s *Service) FetchItem(ctx context.Context, creds domain.Credentials, itemID string, onTokenRefresh TokenUpdateFunc) (*domain.RawEmail, error) {
	srv, err := s.getService(ctx, creds, onTokenRefresh)
	if err != nil {
		return nil, classifyError(err)
	}

	msg, err := srv.Users.Messages.Get("me", itemID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err)
	}

	return convertGmailMessage(msg), nil
}

// Label is a mailbox label as created or listed for a user.
type Label struct {
	ID   string
	Name string
}

// ListLabels retrieves the user's labels.
func (s *Service) ListLabels(ctx context.Context, creds domain.Credentials, onTokenRefresh TokenUpdateFunc) ([]Label, error) {
	srv, err := s.getService(ctx, creds, onTokenRefresh)
	if err != nil {
		return nil, classifyError(err)
	}

	resp, err := srv.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err)
	}

	labels := make([]Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, Label{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

// CreateLabel creates a user label with default visibility.
func (s *Service) CreateLabel(ctx context.Context, creds domain.Credentials, name string, onTokenRefresh TokenUpdateFunc) (*Label, error) {
	srv, err := s.getService(ctx, creds, onTokenRefresh)
	if err != nil {
		return nil, classifyError(err)
	}

	created, err := srv.Users.Labels.Create("me", &gmailapi.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err)
	}

	return &Label{ID: created.Id, Name: created.Name}, nil
}

// Watch sets up push notifications for the user's mailbox
func (s *Service) Watch(ctx context.Context, creds domain.Credentials, topicName string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.getService(ctx, creds, onTokenRefresh)
	if err != nil {
		return classifyError(err)
	}

	// Stop any existing watch first to avoid "Only one user push
	// notification client allowed".
	_ = srv.Users.Stop("me").Do()

	req := &gmailapi.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}

	log.Printf("[Gmail] Starting watch for user %s on topic: %s", creds.UserID, topicName)
	resp, err := srv.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		log.Printf("[Gmail] Watch API error: %v", err)
		return classifyError(err)
	}
	log.Printf("[Gmail] Watch started. Expiration: %d, HistoryId: %d", resp.Expiration, resp.HistoryId)

	return nil
}

// Stop stops push notifications for the user's mailbox
func (s *Service) Stop(ctx context.Context, creds domain.Credentials, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.getService(ctx, creds, onTokenRefresh)
	if err != nil {
		return classifyError(err)
	}

	if err := srv.Users.Stop("me").Do(); err != nil {
		return classifyError(err)
	}
	return nil
}

// classifyError maps Gmail API failures onto the provider error
// taxonomy. Anything unrecognized is treated as transient.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case http.StatusNotFound:
			return domain.NewProviderError(domain.ProviderErrInvalidCursor, err)
		case http.StatusTooManyRequests:
			return domain.NewProviderError(domain.ProviderErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.NewProviderError(domain.ProviderErrAuthRevoked, err)
		}
	}

	// The oauth2 transport reports a revoked refresh token as an
	// invalid_grant retrieve error before any API call happens.
	if strings.Contains(err.Error(), "invalid_grant") {
		return domain.NewProviderError(domain.ProviderErrAuthRevoked, err)
	}

	return domain.NewProviderError(domain.ProviderErrTransient, err)
}

// Helper functions

func convertGmailMessage(msg *gmailapi.Message) *domain.RawEmail {
	raw := &domain.RawEmail{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		Snippet:    msg.Snippet,
		LabelIDs:   msg.LabelIds,
		ReceivedAt: time.Unix(msg.InternalDate/1000, 0),
	}

	if msg.Payload == nil {
		return raw
	}

	raw.Subject = getHeader(msg.Payload.Headers, "Subject")
	raw.From = getHeader(msg.Payload.Headers, "From")
	raw.PlainBody, raw.HTMLBody = getEmailBody(msg.Payload)

	return raw
}

func decodeBody(data string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func getHeader(headers []*gmailapi.MessagePartHeader, name string) string {
	for _, header := range headers {
		if header.Name == name {
			return header.Value
		}
	}
	return ""
}

// getEmailBody walks the MIME tree and returns the plain and HTML
// bodies separately so the caller can choose.
func getEmailBody(payload *gmailapi.MessagePart) (string, string) {
	// If the payload itself is the body
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := decodeBody(payload.Body.Data)
		if err == nil {
			if payload.MimeType == "text/html" {
				return "", data
			}
			return data, ""
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmailapi.MessagePart)
	findBody = func(parts []*gmailapi.MessagePart) {
		for _, part := range parts {
			if part.MimeType == "text/html" {
				if part.Body != nil && part.Body.Data != "" {
					if data, err := decodeBody(part.Body.Data); err == nil {
						htmlBody = data
					}
				}
			} else if part.MimeType == "text/plain" {
				if part.Body != nil && part.Body.Data != "" {
					if data, err := decodeBody(part.Body.Data); err == nil {
						plainBody = data
					}
				}
			}

			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}

	findBody(payload.Parts)

	return plainBody, htmlBody
}
