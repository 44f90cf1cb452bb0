package storage

import (
	"context"

	"token-stream-lab/internal/domain"
)

// PhaseStore provides access to the phases configuration table.
type PhaseStore interface {
	// GetAll retrieves all phases ordered by id ASC.
	GetAll(ctx context.Context) ([]*domain.Phase, error)

	// Upsert inserts or replaces a phase definition.
	Upsert(ctx context.Context, p *domain.Phase) error
}

// TokenStreamStore provides access to the token_streams registry.
type TokenStreamStore interface {
	// GetActive retrieves all streams with status "active".
	GetActive(ctx context.Context) ([]*domain.TokenStream, error)

	// GetByMint retrieves a stream by mint. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.TokenStream, error)

	// UpdatePhase sets phase_id for an active stream.
	// Returns ErrNotFound if the mint has no stream row.
	UpdatePhase(ctx context.Context, mint string, phaseID int) error

	// SetStatus sets a terminal status (graduated | finished).
	// Returns ErrNotFound if the mint has no stream row.
	SetStatus(ctx context.Context, mint string, status string) error
}

// ATHStore persists per-token all-time-high prices, updated in place.
type ATHStore interface {
	// UpsertBulk writes entries, keeping the stored maximum per mint.
	UpsertBulk(ctx context.Context, entries []*domain.ATHEntry) error

	// GetByMint retrieves the ATH for a mint. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.ATHEntry, error)
}

// MetricStore persists aggregated interval snapshots.
type MetricStore interface {
	// InsertBulk appends metric rows. Append-only.
	InsertBulk(ctx context.Context, rows []*domain.MetricRow) error

	// GetByMint retrieves all rows for a mint, ordered by bucket_start ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.MetricRow, error)
}

// RawTradeStore persists individual trade records. Best-effort path.
type RawTradeStore interface {
	// InsertBulk appends raw trades. Append-only.
	InsertBulk(ctx context.Context, trades []*domain.RawTrade) error

	// GetByMint retrieves all trades for a mint, ordered by timestamp ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.RawTrade, error)
}
