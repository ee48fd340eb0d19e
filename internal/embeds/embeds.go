// Package embeds stashes rendered HTML fragments behind short-lived tokens
// so tool results can reference out-of-band output without inlining it.
// Tokens are single-use: retrieval removes the entry, and expired entries are
// swept opportunistically on every store.
package embeds

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TokenKey is the map key a tool result uses to reference stored HTML.
const TokenKey = "_golgue_html_id"

const defaultTTL = 10 * time.Minute

type entry struct {
	storedAt time.Time
	html     string
}

// Cache is a TTL-bound single-use HTML store. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]entry{},
	}
}

// Store saves html and returns its token. Entries past the TTL are purged
// before the new entry is added; there is no background sweeper.
func (c *Cache) Store(html string) string {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for token, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, token)
		}
	}
	token := ulid.Make().String()
	c.entries[token] = entry{storedAt: now, html: html}
	return token
}

// Take retrieves and removes the HTML for token. A token resolves at most
// once; re-resolution after consumption or expiry reports not found.
func (c *Cache) Take(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[token]
	if !ok {
		return "", false
	}
	delete(c.entries, token)
	if c.now().Sub(e.storedAt) > c.ttl {
		return "", false
	}
	return e.html, true
}

// Default is the process-wide cache used by the chart executor and the
// tool-output resolver.
var Default = NewCache(defaultTTL)

func Store(html string) string          { return Default.Store(html) }
func Take(token string) (string, bool) { return Default.Take(token) }
