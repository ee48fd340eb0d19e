package embeds

import (
	"testing"
	"time"
)

func TestStoreTakeSingleUse(t *testing.T) {
	cache := NewCache(time.Minute)
	token := cache.Store("<b>hi</b>")
	if token == "" {
		t.Fatalf("expected a token")
	}

	html, ok := cache.Take(token)
	if !ok || html != "<b>hi</b>" {
		t.Fatalf("first take failed: %q %v", html, ok)
	}
	if _, ok := cache.Take(token); ok {
		t.Fatalf("second take must report not found")
	}
}

func TestTakeEmptyToken(t *testing.T) {
	cache := NewCache(time.Minute)
	if _, ok := cache.Take(""); ok {
		t.Fatalf("empty token must not resolve")
	}
}

func TestExpiredEntryNotReturned(t *testing.T) {
	cache := NewCache(time.Minute)
	current := time.Now()
	cache.now = func() time.Time { return current }

	token := cache.Store("old")
	current = current.Add(2 * time.Minute)
	if _, ok := cache.Take(token); ok {
		t.Fatalf("expired token must not resolve")
	}
}

func TestStoreSweepsExpiredEntries(t *testing.T) {
	cache := NewCache(time.Minute)
	current := time.Now()
	cache.now = func() time.Time { return current }

	stale := cache.Store("stale")
	current = current.Add(2 * time.Minute)
	fresh := cache.Store("fresh")

	cache.mu.Lock()
	_, staleLeft := cache.entries[stale]
	count := len(cache.entries)
	cache.mu.Unlock()
	if staleLeft || count != 1 {
		t.Fatalf("expected sweep to remove the stale entry, left=%v count=%d", staleLeft, count)
	}
	if html, ok := cache.Take(fresh); !ok || html != "fresh" {
		t.Fatalf("fresh entry must survive the sweep")
	}
}

func TestDistinctTokens(t *testing.T) {
	cache := NewCache(time.Minute)
	if cache.Store("a") == cache.Store("b") {
		t.Fatalf("tokens must be unique")
	}
}
