package aggregate

import (
	"math"
	"testing"

	"token-stream-lab/internal/domain"
)

func TestSignatureOf_EmptyBuffer(t *testing.T) {
	b := NewTradeBuffer("")
	sig := SignatureOf(b)
	if sig != (Signature{}) {
		t.Errorf("empty buffer signature = %+v, want zero value", sig)
	}
}

func TestSignatureOf_ChangesWithActivity(t *testing.T) {
	b := NewTradeBuffer("")
	before := SignatureOf(b)
	ApplyTrade(b, buyTrade(1, 10, 5), DefaultConfig(), nil)
	after := SignatureOf(b)

	if before == after {
		t.Error("signature unchanged after applying a trade")
	}
	if after.TradeCount != 1 || after.Volume != 1 || after.Close != 2.0 {
		t.Errorf("signature = %+v, want {2 1 1}", after)
	}
}

func TestCompute_DerivedMetrics(t *testing.T) {
	b := NewTradeBuffer(testCreator)
	cfg := DefaultConfig()

	ApplyTrade(b, buyTrade(3, 10, 5), cfg, nil) // price 2.0
	sell := buyTrade(1, 15, 5)                  // price 3.0
	sell.Side = domain.TradeSideSell
	sell.Trader = "other"
	ApplyTrade(b, sell, cfg, nil)

	row := Compute(b, testMint, 1704067200000, 2)

	if row.Mint != testMint || row.BucketStart != 1704067200000 || row.PhaseID != 2 {
		t.Errorf("row identity = %s/%d/%d", row.Mint, row.BucketStart, row.PhaseID)
	}
	if row.NetVolume != 2 {
		t.Errorf("NetVolume = %v, want 2", row.NetVolume)
	}
	// (high-low)/open*100 = (3-2)/2*100 = 50
	if math.Abs(row.Volatility-50) > 1e-9 {
		t.Errorf("Volatility = %v, want 50", row.Volatility)
	}
	if row.AvgTradeSize != 2 {
		t.Errorf("AvgTradeSize = %v, want 2", row.AvgTradeSize)
	}
	if row.BuyPressure != 0.75 {
		t.Errorf("BuyPressure = %v, want 0.75", row.BuyPressure)
	}
	if row.SignerRatio != 1.0 {
		t.Errorf("SignerRatio = %v, want 1.0", row.SignerRatio)
	}
}

func TestCompute_ZeroDenominatorsDefaultToZero(t *testing.T) {
	b := NewTradeBuffer("")
	row := Compute(b, testMint, 0, 1)

	if row.Volatility != 0 || row.AvgTradeSize != 0 || row.BuyPressure != 0 || row.SignerRatio != 0 {
		t.Errorf("derived metrics on empty buffer = %v/%v/%v/%v, want all 0",
			row.Volatility, row.AvgTradeSize, row.BuyPressure, row.SignerRatio)
	}
}
