package domain

// MetricRow is one aggregated snapshot of a token over a single flush
// interval. Corresponds to token_metrics table in ClickHouse.
type MetricRow struct {
	Mint        string
	BucketStart int64 // interval start, Unix ms
	PhaseID     int   // phase at time of write

	// OHLC over the interval, in SOL per token
	Open  float64
	High  float64
	Low   float64
	Close float64

	// Volume splits, in SOL
	Volume       float64
	BuyVolume    float64
	SellVolume   float64
	MaxBuy       float64
	MaxSell      float64
	WhaleBuyVol  float64
	WhaleSellVol float64
	CreatorSell  float64 // creator-address sell volume (insider signal)

	// Counts
	TradeCount     int
	BuyCount       int
	SellCount      int
	MicroTrades    int
	WhaleBuyCount  int
	WhaleSellCount int
	UniqueWallets  int

	// Latest observed state
	VSolReserves float64
	MarketCapSol float64

	// Derived at flush time; all default to 0 on zero denominator
	NetVolume    float64 // buy - sell
	Volatility   float64 // (high-low)/open * 100
	AvgTradeSize float64
	BuyPressure  float64 // buy_volume / volume
	SignerRatio  float64 // unique_wallets / trade_count
}

// ATHEntry is the all-time-high price for a token.
// Corresponds to token_ath table in PostgreSQL, updated in place.
type ATHEntry struct {
	Mint      string
	Price     float64
	UpdatedAt int64 // ms
}
