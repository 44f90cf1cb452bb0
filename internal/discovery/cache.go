// Package discovery holds newly observed tokens until an external signal
// confirms they are actively tracked, or until they expire.
package discovery

import (
	"time"

	"token-stream-lab/internal/domain"
)

// Cache defaults.
const (
	DefaultTTL     = 360 * time.Second
	DefaultMaxSize = 2048
)

// Entry is one cached token awaiting activation. Owned exclusively by the
// Cache; destroyed on promotion or TTL expiry.
type Entry struct {
	Creation     *domain.TokenCreation
	DiscoveredAt time.Time
	Activated    bool
	trades       []*domain.TradeEvent // pre-activation trades, arrival order
}

// Cache is a bounded TTL holding area keyed by mint.
// Not safe for concurrent use; the engine calls it from its single loop.
type Cache struct {
	entries map[string]*Entry
	maxSize int
}

// NewCache creates a cache holding at most maxSize entries.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		entries: make(map[string]*Entry),
		maxSize: maxSize,
	}
}

// Add inserts a newly discovered token. At capacity, the oldest non-activated
// entry is evicted first; activated entries are never evicted. Returns the
// evicted mint, if any, so the caller can drop its subscription.
func (c *Cache) Add(creation *domain.TokenCreation, now time.Time) string {
	if creation == nil || creation.Mint == "" {
		return ""
	}
	if _, exists := c.entries[creation.Mint]; exists {
		return ""
	}

	var evicted string
	if len(c.entries) >= c.maxSize {
		evicted = c.evictOldest()
	}

	c.entries[creation.Mint] = &Entry{
		Creation:     creation,
		DiscoveredAt: now,
	}
	return evicted
}

// AddTrade appends a trade to the entry's buffer. No-op if the mint is not
// cached or already activated: trades for tokens never promoted are dropped.
func (c *Cache) AddTrade(mint string, trade *domain.TradeEvent) {
	e, exists := c.entries[mint]
	if !exists || e.Activated {
		return
	}
	e.trades = append(e.trades, trade)
}

// Activate marks the entry activated and returns its buffered trades in
// original arrival order, clearing them. Returns nil, false if not cached.
func (c *Cache) Activate(mint string) ([]*domain.TradeEvent, bool) {
	e, exists := c.entries[mint]
	if !exists {
		return nil, false
	}
	e.Activated = true
	trades := e.trades
	e.trades = nil
	return trades, true
}

// Remove deletes the entry for a mint (after promotion into the watchlist).
func (c *Cache) Remove(mint string) {
	delete(c.entries, mint)
}

// Get returns the entry for a mint, or nil.
func (c *Cache) Get(mint string) *Entry {
	return c.entries[mint]
}

// Contains reports whether the mint is cached.
func (c *Cache) Contains(mint string) bool {
	_, exists := c.entries[mint]
	return exists
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

// ExpireOlderThan removes all non-activated entries older than ttl.
// Returns the removed mints so the caller can drop their subscriptions.
func (c *Cache) ExpireOlderThan(ttl time.Duration, now time.Time) []string {
	var removed []string
	for mint, e := range c.entries {
		if e.Activated {
			continue
		}
		if now.Sub(e.DiscoveredAt) > ttl {
			delete(c.entries, mint)
			removed = append(removed, mint)
		}
	}
	return removed
}

// evictOldest removes the non-activated entry with the smallest DiscoveredAt.
// Activation is the "keep" signal, so this approximates LRU by arrival.
func (c *Cache) evictOldest() string {
	var (
		oldestMint string
		oldestAt   time.Time
	)
	for mint, e := range c.entries {
		if e.Activated {
			continue
		}
		if oldestMint == "" || e.DiscoveredAt.Before(oldestAt) {
			oldestMint = mint
			oldestAt = e.DiscoveredAt
		}
	}
	if oldestMint != "" {
		delete(c.entries, oldestMint)
	}
	return oldestMint
}
