package gmail

import (
	"sync"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

// clientCache holds constructed Gmail API clients for a bounded lifetime.
// Entries are keyed by user plus a prefix of the access token, so a token
// refresh naturally produces a new entry instead of reviving a stale client.
type clientCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*cacheEntry
	stop    chan struct{}
}

type cacheEntry struct {
	service   *gmailapi.Service
	expiresAt time.Time
}

func newClientCache(ttl time.Duration) *clientCache {
	c := &clientCache{
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
		stop:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

func cacheKey(userID, accessToken string) string {
	prefix := accessToken
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return userID + "|" + prefix
}

func (c *clientCache) get(key string) (*gmailapi.Service, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.service, true
}

func (c *clientCache) put(key string, srv *gmailapi.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry{
		service:   srv,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// sweep drops expired entries so the map stays bounded even for keys
// that are never requested again.
func (c *clientCache) sweep() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

func (c *clientCache) close() {
	close(c.stop)
}
