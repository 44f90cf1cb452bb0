package aggregate

import (
	"testing"

	"token-stream-lab/internal/domain"
)

const (
	testMint    = "So11111111111111111111111111111111111111112"
	testCreator = "CreatorWallet111111111111111111111111111111"
)

func buyTrade(sol, vSol, vTok float64) *domain.TradeEvent {
	return &domain.TradeEvent{
		Mint:         testMint,
		Side:         domain.TradeSideBuy,
		Trader:       "TraderA",
		SolAmount:    sol,
		VSolReserves: vSol,
		VTokReserves: vTok,
		MarketCapSol: vSol * 2,
		Signature:    "sig",
		Timestamp:    1704067200000,
	}
}

func TestApplyTrade_FirstBuySetsOHLC(t *testing.T) {
	b := NewTradeBuffer(testCreator)

	// Reserves 10 SOL / 5 tokens give price 2.0.
	ok := ApplyTrade(b, buyTrade(1.5, 10, 5), DefaultConfig(), nil)
	if !ok {
		t.Fatal("expected trade to be applied")
	}

	if b.Open != 2.0 || b.High != 2.0 || b.Low != 2.0 || b.Close != 2.0 {
		t.Errorf("OHLC = %v/%v/%v/%v, want all 2.0", b.Open, b.High, b.Low, b.Close)
	}
	if b.BuyCount != 1 || b.SellCount != 0 {
		t.Errorf("counts = %d buys, %d sells, want 1/0", b.BuyCount, b.SellCount)
	}
	if b.Volume != 1.5 || b.BuyVolume != 1.5 {
		t.Errorf("volume = %v, buy volume = %v, want 1.5", b.Volume, b.BuyVolume)
	}
	if b.VSolReserves != 10 {
		t.Errorf("VSolReserves = %v, want 10", b.VSolReserves)
	}
	if len(b.RawTrades) != 1 {
		t.Fatalf("RawTrades len = %d, want 1", len(b.RawTrades))
	}
	if b.RawTrades[0].Price != 2.0 {
		t.Errorf("raw trade price = %v, want 2.0", b.RawTrades[0].Price)
	}
}

func TestApplyTrade_ZeroReservesRejectedWithoutMutation(t *testing.T) {
	b := NewTradeBuffer(testCreator)
	ApplyTrade(b, buyTrade(1.0, 10, 5), DefaultConfig(), nil)

	before := *b
	bad := buyTrade(3.0, 0, 5)
	if ApplyTrade(b, bad, DefaultConfig(), nil) {
		t.Fatal("expected zero-reserve trade to be rejected")
	}
	bad = buyTrade(3.0, 10, 0)
	if ApplyTrade(b, bad, DefaultConfig(), nil) {
		t.Fatal("expected zero-reserve trade to be rejected")
	}

	if b.Volume != before.Volume || b.TradeCount() != before.TradeCount() || b.Close != before.Close {
		t.Error("buffer mutated by rejected trade")
	}
	if len(b.RawTrades) != 1 {
		t.Errorf("RawTrades len = %d, want 1", len(b.RawTrades))
	}
}

func TestApplyTrade_HighLowTracking(t *testing.T) {
	b := NewTradeBuffer(testCreator)
	cfg := DefaultConfig()

	ApplyTrade(b, buyTrade(1, 10, 5), cfg, nil) // 2.0
	ApplyTrade(b, buyTrade(1, 30, 5), cfg, nil) // 6.0
	ApplyTrade(b, buyTrade(1, 5, 5), cfg, nil)  // 1.0

	if b.Open != 2.0 {
		t.Errorf("Open = %v, want 2.0", b.Open)
	}
	if b.High != 6.0 {
		t.Errorf("High = %v, want 6.0", b.High)
	}
	if b.Low != 1.0 {
		t.Errorf("Low = %v, want 1.0", b.Low)
	}
	if b.Close != 1.0 {
		t.Errorf("Close = %v, want 1.0", b.Close)
	}
}

func TestApplyTrade_WhaleAndMicroClassification(t *testing.T) {
	b := NewTradeBuffer(testCreator)
	cfg := DefaultConfig()

	ApplyTrade(b, buyTrade(6.0, 10, 5), cfg, nil)   // whale buy
	ApplyTrade(b, buyTrade(0.005, 10, 5), cfg, nil) // micro buy

	sell := buyTrade(7.5, 10, 5)
	sell.Side = domain.TradeSideSell
	ApplyTrade(b, sell, cfg, nil) // whale sell

	if b.WhaleBuyCount != 1 || b.WhaleBuyVol != 6.0 {
		t.Errorf("whale buys = %d/%v, want 1/6.0", b.WhaleBuyCount, b.WhaleBuyVol)
	}
	if b.WhaleSellCount != 1 || b.WhaleSellVol != 7.5 {
		t.Errorf("whale sells = %d/%v, want 1/7.5", b.WhaleSellCount, b.WhaleSellVol)
	}
	if b.MicroTrades != 1 {
		t.Errorf("micro trades = %d, want 1", b.MicroTrades)
	}
	if b.MaxBuy != 6.0 || b.MaxSell != 7.5 {
		t.Errorf("max buy/sell = %v/%v, want 6.0/7.5", b.MaxBuy, b.MaxSell)
	}
}

func TestApplyTrade_CreatorSellTracked(t *testing.T) {
	b := NewTradeBuffer(testCreator)
	cfg := DefaultConfig()

	sell := buyTrade(2.0, 10, 5)
	sell.Side = domain.TradeSideSell
	sell.Trader = testCreator
	ApplyTrade(b, sell, cfg, nil)

	// Creator buying does not count.
	buy := buyTrade(3.0, 10, 5)
	buy.Trader = testCreator
	ApplyTrade(b, buy, cfg, nil)

	if b.CreatorSellVol != 2.0 {
		t.Errorf("creator sell volume = %v, want 2.0", b.CreatorSellVol)
	}
}

func TestApplyTrade_DistinctWallets(t *testing.T) {
	b := NewTradeBuffer(testCreator)
	cfg := DefaultConfig()

	for _, trader := range []string{"w1", "w2", "w1", "w3"} {
		tr := buyTrade(1, 10, 5)
		tr.Trader = trader
		ApplyTrade(b, tr, cfg, nil)
	}

	if len(b.Wallets) != 3 {
		t.Errorf("unique wallets = %d, want 3", len(b.Wallets))
	}
}

func TestApplyTrade_IdempotentAcrossFreshBuffers(t *testing.T) {
	trades := []*domain.TradeEvent{
		buyTrade(1, 10, 5),
		buyTrade(2, 12, 5),
		buyTrade(0.5, 11, 5),
	}

	b1 := NewTradeBuffer(testCreator)
	b2 := NewTradeBuffer(testCreator)
	for _, tr := range trades {
		ApplyTrade(b1, tr, DefaultConfig(), nil)
		ApplyTrade(b2, tr, DefaultConfig(), nil)
	}

	if SignatureOf(b1) != SignatureOf(b2) {
		t.Errorf("signatures differ: %+v vs %+v", SignatureOf(b1), SignatureOf(b2))
	}
	if b1.Volume != b2.Volume || b1.High != b2.High || b1.Low != b2.Low {
		t.Error("same trades on fresh buffers produced different aggregates")
	}
}

func TestApplyTrade_ObservesATH(t *testing.T) {
	b := NewTradeBuffer(testCreator)
	ath := NewATHCache()

	ApplyTrade(b, buyTrade(1, 10, 5), DefaultConfig(), ath) // 2.0
	ApplyTrade(b, buyTrade(1, 5, 5), DefaultConfig(), ath)  // 1.0, no new high

	if got := ath.Get(testMint); got != 2.0 {
		t.Errorf("ATH = %v, want 2.0", got)
	}
}

func TestReset_KeepsCreatorClearsEverythingElse(t *testing.T) {
	b := NewTradeBuffer(testCreator)
	ApplyTrade(b, buyTrade(1, 10, 5), DefaultConfig(), nil)

	b.Reset()

	if b.Creator != testCreator {
		t.Errorf("creator = %q, want %q", b.Creator, testCreator)
	}
	if b.TradeCount() != 0 || b.Volume != 0 || b.HasOpen || len(b.RawTrades) != 0 {
		t.Error("reset did not clear buffer state")
	}
	if b.Wallets == nil || len(b.Wallets) != 0 {
		t.Error("reset did not reinitialize wallet set")
	}
}
