package lifecycle

import (
	"testing"
	"time"

	"token-stream-lab/internal/aggregate"
	"token-stream-lab/internal/domain"
)

func newEntry(mint string, phaseID, intervalSeconds int, createdAt time.Time) *Entry {
	return &Entry{
		Mint:            mint,
		PhaseID:         phaseID,
		CreatedAt:       createdAt,
		Creator:         "creator",
		Buffer:          aggregate.NewTradeBuffer("creator"),
		IntervalSeconds: intervalSeconds,
	}
}

func TestWatchlist_AddSchedulesFirstFlush(t *testing.T) {
	wl := NewWatchlist()
	now := time.Now()

	wl.Add(newEntry("m1", 1, 30, now), now)

	e := wl.Get("m1")
	if e == nil {
		t.Fatal("entry not added")
	}
	if want := now.Add(30 * time.Second); !e.NextFlushAt.Equal(want) {
		t.Errorf("NextFlushAt = %v, want %v", e.NextFlushAt, want)
	}
	if e.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}
}

func TestWatchlist_MintsAndEach(t *testing.T) {
	wl := NewWatchlist()
	now := time.Now()
	for _, m := range []string{"a", "b", "c"} {
		wl.Add(newEntry(m, 1, 5, now), now)
	}

	if wl.Len() != 3 {
		t.Errorf("len = %d, want 3", wl.Len())
	}
	if got := len(wl.Mints()); got != 3 {
		t.Errorf("Mints len = %d, want 3", got)
	}

	seen := 0
	wl.Each(func(*Entry) { seen++ })
	if seen != 3 {
		t.Errorf("Each visited %d entries, want 3", seen)
	}

	wl.Remove("b")
	if wl.Contains("b") || wl.Len() != 2 {
		t.Error("remove failed")
	}
}

func TestEntry_ApplyTradeUpdatesTrackers(t *testing.T) {
	now := time.Now()
	e := newEntry("m1", 1, 5, now)

	tr := &domain.TradeEvent{
		Mint:         "m1",
		Side:         domain.TradeSideBuy,
		SolAmount:    1,
		VSolReserves: 42,
		VTokReserves: 5,
	}
	if !e.ApplyTrade(tr, aggregate.DefaultConfig(), nil, now) {
		t.Fatal("trade not applied")
	}

	if !e.LastTradeAt.Equal(now) {
		t.Errorf("LastTradeAt = %v, want %v", e.LastTradeAt, now)
	}
	if e.LastVSolReserves != 42 {
		t.Errorf("LastVSolReserves = %v, want 42", e.LastVSolReserves)
	}

	// Reserves tracking survives a buffer reset.
	e.Buffer.Reset()
	if e.LastVSolReserves != 42 {
		t.Error("LastVSolReserves lost on buffer reset")
	}

	// Rejected trades touch nothing.
	later := now.Add(time.Minute)
	bad := &domain.TradeEvent{Mint: "m1", Side: domain.TradeSideBuy, VSolReserves: 0, VTokReserves: 5}
	if e.ApplyTrade(bad, aggregate.DefaultConfig(), nil, later) {
		t.Fatal("zero-reserve trade applied")
	}
	if e.LastTradeAt.Equal(later) {
		t.Error("LastTradeAt updated by rejected trade")
	}
}
