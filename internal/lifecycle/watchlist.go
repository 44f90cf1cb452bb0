package lifecycle

import (
	"time"

	"token-stream-lab/internal/aggregate"
	"token-stream-lab/internal/domain"
)

// Entry is one actively tracked token. Exactly one TradeBuffer exists per
// entry; the entry is destroyed on graduation or lifecycle exhaustion.
type Entry struct {
	Mint      string
	PhaseID   int
	CreatedAt time.Time // token creation time
	StartedAt time.Time // tracking start time
	Creator   string

	Buffer          *aggregate.TradeBuffer
	IntervalSeconds int
	NextFlushAt     time.Time

	LastSig    aggregate.Signature
	HasLastSig bool
	StaleCount int

	LastTradeAt      time.Time // for the stale-subscription watchdog
	LastVSolReserves float64   // latest reserves, survives buffer resets
}

// ApplyTrade folds a trade into the entry's buffer and refreshes the
// entry-level trackers that must survive buffer resets.
func (e *Entry) ApplyTrade(trade *domain.TradeEvent, cfg aggregate.Config, ath *aggregate.ATHCache, now time.Time) bool {
	if !aggregate.ApplyTrade(e.Buffer, trade, cfg, ath) {
		return false
	}
	e.LastTradeAt = now
	e.LastVSolReserves = trade.VSolReserves
	return true
}

// Watchlist is the active-tracking map, keyed by mint.
// Not safe for concurrent use; the engine calls it from its single loop.
type Watchlist struct {
	entries map[string]*Entry
}

// NewWatchlist creates an empty watchlist.
func NewWatchlist() *Watchlist {
	return &Watchlist{entries: make(map[string]*Entry)}
}

// Add inserts an entry, scheduling its first flush one interval out.
func (w *Watchlist) Add(e *Entry, now time.Time) {
	if e == nil || e.Mint == "" {
		return
	}
	if e.Buffer == nil {
		e.Buffer = aggregate.NewTradeBuffer(e.Creator)
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = now
	}
	if e.NextFlushAt.IsZero() {
		e.NextFlushAt = now.Add(time.Duration(e.IntervalSeconds) * time.Second)
	}
	if e.LastTradeAt.IsZero() {
		e.LastTradeAt = now
	}
	w.entries[e.Mint] = e
}

// Get returns the entry for a mint, or nil.
func (w *Watchlist) Get(mint string) *Entry {
	return w.entries[mint]
}

// Contains reports whether the mint is tracked.
func (w *Watchlist) Contains(mint string) bool {
	_, ok := w.entries[mint]
	return ok
}

// Remove deletes the entry for a mint.
func (w *Watchlist) Remove(mint string) {
	delete(w.entries, mint)
}

// Len returns the number of tracked tokens.
func (w *Watchlist) Len() int {
	return len(w.entries)
}

// Mints returns all tracked mints. Order is not defined.
func (w *Watchlist) Mints() []string {
	mints := make([]string, 0, len(w.entries))
	for mint := range w.entries {
		mints = append(mints, mint)
	}
	return mints
}

// Each calls fn for every entry. fn must not add or remove entries.
func (w *Watchlist) Each(fn func(*Entry)) {
	for _, e := range w.entries {
		fn(e)
	}
}
