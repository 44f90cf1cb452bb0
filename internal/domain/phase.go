package domain

// Phase is one lifecycle stage of a tracked token.
// Corresponds to phases table in PostgreSQL; ordered by ID.
type Phase struct {
	ID              int    // ordering key
	IntervalSeconds int    // flush cadence while in this phase
	MaxAgeMinutes   int    // token leaves the phase once older than this
	Name            string // human-readable label ("early", "established", ...)
}

// Terminal lifecycle outcomes. Not phases: once reached, tracking stops
// and the token never re-enters the watchlist.
const (
	StreamStatusActive    = "active"
	StreamStatusGraduated = "graduated"
	StreamStatusFinished  = "finished"
)
