package domain

// TokenCreation represents a newly created token announced on the stream.
type TokenCreation struct {
	Mint         string  // token mint address
	Name         string  // token name
	Symbol       string  // token symbol
	Creator      string  // creator wallet address
	URI          string  // metadata URI
	InitialBuy   float64 // creator's initial buy in SOL (0 if none)
	VSolReserves float64 // virtual SOL reserves at creation
	VTokReserves float64 // virtual token reserves at creation
	MarketCapSol float64 // market cap in SOL at creation
	Signature    string  // creation transaction signature
	DiscoveredAt int64   // Unix timestamp in milliseconds
}
