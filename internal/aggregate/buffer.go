// Package aggregate turns a stream of trade events into per-interval
// OHLCV and participant statistics.
package aggregate

import (
	"token-stream-lab/internal/domain"
)

// Thresholds for trade classification, in SOL.
const (
	DefaultWhaleThreshold = 5.0
	DefaultMicroThreshold = 0.01
)

// Config holds aggregation thresholds.
type Config struct {
	WhaleThresholdSol float64
	MicroThresholdSol float64
}

// DefaultConfig returns the default aggregation configuration.
func DefaultConfig() Config {
	return Config{
		WhaleThresholdSol: DefaultWhaleThreshold,
		MicroThresholdSol: DefaultMicroThreshold,
	}
}

// TradeBuffer accumulates one flush interval of trades for a single token.
// Exclusively owned by one watchlist entry; reset after every flush attempt.
type TradeBuffer struct {
	Creator string // creator wallet, for insider-sell tracking

	HasOpen bool
	Open    float64
	High    float64
	Low     float64
	Close   float64

	Volume      float64
	BuyVolume   float64
	SellVolume  float64
	BuyCount    int
	SellCount   int
	MicroTrades int
	MaxBuy      float64
	MaxSell     float64

	WhaleBuyVol    float64
	WhaleSellVol   float64
	WhaleBuyCount  int
	WhaleSellCount int

	CreatorSellVol float64

	Wallets map[string]struct{}

	VSolReserves float64 // latest observed
	MarketCapSol float64 // latest observed

	RawTrades []*domain.RawTrade // for best-effort secondary persistence
}

// NewTradeBuffer creates an empty buffer for a token with the given creator.
func NewTradeBuffer(creator string) *TradeBuffer {
	return &TradeBuffer{
		Creator: creator,
		Wallets: make(map[string]struct{}),
	}
}

// TradeCount returns the number of applied trades.
func (b *TradeBuffer) TradeCount() int {
	return b.BuyCount + b.SellCount
}

// Reset clears the buffer for the next interval, keeping the creator.
func (b *TradeBuffer) Reset() {
	creator := b.Creator
	*b = TradeBuffer{
		Creator: creator,
		Wallets: make(map[string]struct{}),
	}
}

// ApplyTrade folds one trade into the buffer. Trades with unusable reserve
// fields are skipped (returns false) without mutating the buffer. Pure
// mutation: no I/O, no side effects beyond the buffer and the ATH cache.
func ApplyTrade(b *TradeBuffer, trade *domain.TradeEvent, cfg Config, ath *ATHCache) bool {
	if trade == nil {
		return false
	}
	price, ok := trade.Price()
	if !ok {
		return false
	}

	if !b.HasOpen {
		b.HasOpen = true
		b.Open = price
		b.High = price
		b.Low = price
	}
	if price > b.High {
		b.High = price
	}
	if price < b.Low {
		b.Low = price
	}
	b.Close = price

	size := trade.SolAmount
	b.Volume += size

	isBuy := trade.Side == domain.TradeSideBuy
	if isBuy {
		b.BuyVolume += size
		b.BuyCount++
		if size > b.MaxBuy {
			b.MaxBuy = size
		}
		if size >= cfg.WhaleThresholdSol {
			b.WhaleBuyVol += size
			b.WhaleBuyCount++
		}
	} else {
		b.SellVolume += size
		b.SellCount++
		if size > b.MaxSell {
			b.MaxSell = size
		}
		if size >= cfg.WhaleThresholdSol {
			b.WhaleSellVol += size
			b.WhaleSellCount++
		}
		if b.Creator != "" && trade.Trader == b.Creator {
			b.CreatorSellVol += size
		}
	}

	if size < cfg.MicroThresholdSol {
		b.MicroTrades++
	}

	if trade.Trader != "" {
		b.Wallets[trade.Trader] = struct{}{}
	}

	b.VSolReserves = trade.VSolReserves
	b.MarketCapSol = trade.MarketCapSol

	b.RawTrades = append(b.RawTrades, &domain.RawTrade{
		Mint:      trade.Mint,
		Side:      trade.Side,
		Trader:    trade.Trader,
		SolAmount: size,
		Price:     price,
		Signature: trade.Signature,
		Timestamp: trade.Timestamp,
	})

	if ath != nil {
		ath.Observe(trade.Mint, price)
	}

	return true
}
