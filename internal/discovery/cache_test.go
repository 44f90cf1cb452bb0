package discovery

import (
	"fmt"
	"testing"
	"time"

	"token-stream-lab/internal/domain"
)

func creation(mint string) *domain.TokenCreation {
	return &domain.TokenCreation{
		Mint:    mint,
		Name:    "Token " + mint,
		Symbol:  "TKN",
		Creator: "creator",
	}
}

func trade(mint string, sol float64) *domain.TradeEvent {
	return &domain.TradeEvent{
		Mint:         mint,
		Side:         domain.TradeSideBuy,
		SolAmount:    sol,
		VSolReserves: 10,
		VTokReserves: 5,
	}
}

func TestCache_AddAndGet(t *testing.T) {
	c := NewCache(10)
	now := time.Now()

	c.Add(creation("m1"), now)

	if !c.Contains("m1") {
		t.Fatal("added mint not present")
	}
	e := c.Get("m1")
	if e == nil || e.Creation.Mint != "m1" {
		t.Fatal("entry not retrievable")
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}

	// Re-adding the same mint is a no-op.
	c.Add(creation("m1"), now.Add(time.Second))
	if c.Len() != 1 {
		t.Errorf("len after duplicate add = %d, want 1", c.Len())
	}
}

func TestCache_TradeBufferingAndActivation(t *testing.T) {
	c := NewCache(10)
	now := time.Now()
	c.Add(creation("m1"), now)

	c.AddTrade("m1", trade("m1", 1))
	c.AddTrade("m1", trade("m1", 2))
	c.AddTrade("absent", trade("absent", 3)) // silently dropped

	trades, ok := c.Activate("m1")
	if !ok {
		t.Fatal("activation failed")
	}
	if len(trades) != 2 {
		t.Fatalf("replayed trades = %d, want 2", len(trades))
	}
	// Arrival order preserved.
	if trades[0].SolAmount != 1 || trades[1].SolAmount != 2 {
		t.Error("trade replay order not preserved")
	}

	// Post-activation trades are dropped, buffer stays cleared.
	c.AddTrade("m1", trade("m1", 4))
	if again, _ := c.Activate("m1"); len(again) != 0 {
		t.Error("activated entry accepted new trades")
	}
}

func TestCache_ActivateUnknownMint(t *testing.T) {
	c := NewCache(10)
	if _, ok := c.Activate("nope"); ok {
		t.Error("activation of unknown mint succeeded")
	}
}

func TestCache_ExpireOlderThan(t *testing.T) {
	c := NewCache(10)
	base := time.Now()

	c.Add(creation("old"), base)
	c.Add(creation("fresh"), base.Add(5*time.Minute))
	c.Add(creation("kept"), base)
	c.Activate("kept") // activated entries never expire

	removed := c.ExpireOlderThan(6*time.Minute, base.Add(7*time.Minute))
	if len(removed) != 1 || removed[0] != "old" {
		t.Errorf("removed = %v, want [old]", removed)
	}
	if !c.Contains("fresh") || !c.Contains("kept") {
		t.Error("expiry removed entries it should have kept")
	}
}

func TestCache_CapacityEvictsOldestNonActivated(t *testing.T) {
	c := NewCache(3)
	base := time.Now()

	// "second" has the smallest DiscoveredAt among non-activated entries
	// once "first" is activated.
	c.Add(creation("first"), base)
	c.Add(creation("second"), base.Add(time.Second))
	c.Add(creation("third"), base.Add(2*time.Second))
	c.Activate("first")

	evicted := c.Add(creation("fourth"), base.Add(3*time.Second))
	if evicted != "second" {
		t.Errorf("evicted = %q, want second", evicted)
	}
	if !c.Contains("first") {
		t.Error("activated entry was evicted")
	}
	if !c.Contains("third") || !c.Contains("fourth") {
		t.Error("wrong entry evicted")
	}
}

func TestCache_EvictionPicksSmallestDiscoveredAt(t *testing.T) {
	c := NewCache(5)
	base := time.Now()

	// Insert out of chronological order; eviction must still pick the
	// smallest DiscoveredAt, not insertion order.
	for i, offset := range []int{4, 1, 3, 0, 2} {
		c.Add(creation(fmt.Sprintf("m%d", i)), base.Add(time.Duration(offset)*time.Second))
	}

	evicted := c.Add(creation("overflow"), base.Add(10*time.Second))
	if evicted != "m3" { // offset 0
		t.Errorf("evicted = %q, want m3 (smallest DiscoveredAt)", evicted)
	}
}

func TestCache_RemoveDestroysEntry(t *testing.T) {
	c := NewCache(10)
	c.Add(creation("m1"), time.Now())
	c.Remove("m1")

	if c.Contains("m1") || c.Len() != 0 {
		t.Error("remove did not destroy the entry")
	}
}
