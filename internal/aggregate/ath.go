package aggregate

import (
	"time"

	"token-stream-lab/internal/domain"
)

// ATHCache tracks the highest observed price per token. Values only ever
// increase; a dirty set marks entries with unflushed increases.
// Not safe for concurrent use; the engine calls it from its single loop.
type ATHCache struct {
	highs map[string]float64
	dirty map[string]struct{}
}

// NewATHCache creates an empty ATH cache.
func NewATHCache() *ATHCache {
	return &ATHCache{
		highs: make(map[string]float64),
		dirty: make(map[string]struct{}),
	}
}

// Observe records a price, marking the entry dirty if it is a new high.
func (c *ATHCache) Observe(mint string, price float64) {
	if mint == "" || price <= 0 {
		return
	}
	if current, ok := c.highs[mint]; ok && price <= current {
		return
	}
	c.highs[mint] = price
	c.dirty[mint] = struct{}{}
}

// Get returns the recorded high for a mint, or 0.
func (c *ATHCache) Get(mint string) float64 {
	return c.highs[mint]
}

// Seed loads a known high without marking it dirty (startup resync).
func (c *ATHCache) Seed(mint string, price float64) {
	if current, ok := c.highs[mint]; ok && price <= current {
		return
	}
	c.highs[mint] = price
}

// Forget drops all state for a mint (terminal lifecycle cleanup).
func (c *ATHCache) Forget(mint string) {
	delete(c.highs, mint)
	delete(c.dirty, mint)
}

// DirtyEntries returns entries with unflushed increases.
func (c *ATHCache) DirtyEntries(now time.Time) []*domain.ATHEntry {
	if len(c.dirty) == 0 {
		return nil
	}
	entries := make([]*domain.ATHEntry, 0, len(c.dirty))
	ts := now.UnixMilli()
	for mint := range c.dirty {
		entries = append(entries, &domain.ATHEntry{
			Mint:      mint,
			Price:     c.highs[mint],
			UpdatedAt: ts,
		})
	}
	return entries
}

// MarkFlushed clears the dirty flag for the given mints.
func (c *ATHCache) MarkFlushed(mints []string) {
	for _, mint := range mints {
		delete(c.dirty, mint)
	}
}

// DirtyCount returns the number of entries awaiting flush.
func (c *ATHCache) DirtyCount() int {
	return len(c.dirty)
}
