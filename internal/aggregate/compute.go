package aggregate

import (
	"token-stream-lab/internal/domain"
)

// Signature is the dedup key for one flushed interval. Two consecutive
// identical signatures mean the subscription is likely serving stale data.
type Signature struct {
	Close      float64
	Volume     float64
	TradeCount int
}

// SignatureOf computes the dedup signature for the buffer's current state.
func SignatureOf(b *TradeBuffer) Signature {
	return Signature{
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount(),
	}
}

// Compute builds the persisted metric row from the buffer. Derived ratios
// default to 0 on a zero denominator rather than erroring.
func Compute(b *TradeBuffer, mint string, bucketStart int64, phaseID int) *domain.MetricRow {
	row := &domain.MetricRow{
		Mint:        mint,
		BucketStart: bucketStart,
		PhaseID:     phaseID,

		Open:  b.Open,
		High:  b.High,
		Low:   b.Low,
		Close: b.Close,

		Volume:       b.Volume,
		BuyVolume:    b.BuyVolume,
		SellVolume:   b.SellVolume,
		MaxBuy:       b.MaxBuy,
		MaxSell:      b.MaxSell,
		WhaleBuyVol:  b.WhaleBuyVol,
		WhaleSellVol: b.WhaleSellVol,
		CreatorSell:  b.CreatorSellVol,

		TradeCount:     b.TradeCount(),
		BuyCount:       b.BuyCount,
		SellCount:      b.SellCount,
		MicroTrades:    b.MicroTrades,
		WhaleBuyCount:  b.WhaleBuyCount,
		WhaleSellCount: b.WhaleSellCount,
		UniqueWallets:  len(b.Wallets),

		VSolReserves: b.VSolReserves,
		MarketCapSol: b.MarketCapSol,
	}

	row.NetVolume = b.BuyVolume - b.SellVolume

	if b.HasOpen && b.Open != 0 {
		row.Volatility = (b.High - b.Low) / b.Open * 100
	}
	if row.TradeCount > 0 {
		row.AvgTradeSize = b.Volume / float64(row.TradeCount)
		row.SignerRatio = float64(row.UniqueWallets) / float64(row.TradeCount)
	}
	if b.Volume > 0 {
		row.BuyPressure = b.BuyVolume / b.Volume
	}

	return row
}
