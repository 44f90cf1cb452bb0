package domain

// TradeEvent represents a single buy or sell observed on the stream.
type TradeEvent struct {
	Mint         string  // token mint address
	Side         string  // "buy" | "sell"
	Trader       string  // trader wallet address
	SolAmount    float64 // trade size in SOL
	TokenAmount  float64 // trade size in token units
	VSolReserves float64 // virtual SOL reserves after the trade
	VTokReserves float64 // virtual token reserves after the trade
	MarketCapSol float64 // market cap in SOL after the trade
	Signature    string  // transaction signature
	Timestamp    int64   // Unix timestamp in milliseconds
}

// Trade side constants
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// Price derives the instantaneous price from bonding curve reserves.
// Returns false when either reserve field is zero or missing.
func (t *TradeEvent) Price() (float64, bool) {
	if t.VTokReserves <= 0 || t.VSolReserves <= 0 {
		return 0, false
	}
	return t.VSolReserves / t.VTokReserves, true
}

// RawTrade is the flat trade tuple persisted to the raw trade table.
// Corresponds to raw_trades in ClickHouse.
type RawTrade struct {
	Mint      string
	Side      string
	Trader    string
	SolAmount float64
	Price     float64
	Signature string
	Timestamp int64 // ms
	PhaseID   int   // phase at time of observation
}
