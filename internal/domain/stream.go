package domain

// TokenStream is the persistent record of an actively tracked token.
// Corresponds to token_streams table in PostgreSQL. Rows are created by the
// external activation pipeline; this engine reads them to promote cached
// tokens into the watchlist, updates phase_id on phase switches, and sets a
// terminal status on graduation or lifecycle exhaustion.
type TokenStream struct {
	Mint      string
	PhaseID   int
	CreatedAt int64  // token creation timestamp (ms)
	StartedAt int64  // tracking start timestamp (ms)
	Creator   string // creator wallet address
	Status    string // active | graduated | finished
	UpdatedAt int64  // ms
}
