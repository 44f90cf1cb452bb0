package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// TokenStreamStore implements storage.TokenStreamStore using PostgreSQL.
type TokenStreamStore struct {
	pool *Pool
}

// NewTokenStreamStore creates a new TokenStreamStore.
func NewTokenStreamStore(pool *Pool) *TokenStreamStore {
	return &TokenStreamStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStreamStore = (*TokenStreamStore)(nil)

// GetActive retrieves all streams with status "active".
func (s *TokenStreamStore) GetActive(ctx context.Context) ([]*domain.TokenStream, error) {
	query := `
		SELECT mint, phase_id, created_at, started_at, creator, status, updated_at
		FROM token_streams
		WHERE status = $1
		ORDER BY started_at ASC
	`

	rows, err := s.pool.Query(ctx, query, domain.StreamStatusActive)
	if err != nil {
		return nil, fmt.Errorf("get active streams: %w", err)
	}
	defer rows.Close()

	return scanStreams(rows)
}

// GetByMint retrieves a stream by mint. Returns ErrNotFound if not exists.
func (s *TokenStreamStore) GetByMint(ctx context.Context, mint string) (*domain.TokenStream, error) {
	query := `
		SELECT mint, phase_id, created_at, started_at, creator, status, updated_at
		FROM token_streams
		WHERE mint = $1
	`

	var ts domain.TokenStream
	err := s.pool.QueryRow(ctx, query, mint).Scan(
		&ts.Mint, &ts.PhaseID, &ts.CreatedAt, &ts.StartedAt, &ts.Creator, &ts.Status, &ts.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get stream by mint: %w", err)
	}
	return &ts, nil
}

// UpdatePhase sets phase_id for an active stream.
func (s *TokenStreamStore) UpdatePhase(ctx context.Context, mint string, phaseID int) error {
	query := `
		UPDATE token_streams
		SET phase_id = $2, updated_at = $3
		WHERE mint = $1 AND status = $4
	`

	tag, err := s.pool.Exec(ctx, query, mint, phaseID, time.Now().UnixMilli(), domain.StreamStatusActive)
	if err != nil {
		return fmt.Errorf("update stream phase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetStatus sets a terminal status (graduated | finished).
func (s *TokenStreamStore) SetStatus(ctx context.Context, mint string, status string) error {
	if status != domain.StreamStatusGraduated && status != domain.StreamStatusFinished {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE token_streams
		SET status = $2, updated_at = $3
		WHERE mint = $1
	`

	tag, err := s.pool.Exec(ctx, query, mint, status, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set stream status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanStreams scans multiple rows into a slice of TokenStream.
func scanStreams(rows pgx.Rows) ([]*domain.TokenStream, error) {
	var streams []*domain.TokenStream

	for rows.Next() {
		var ts domain.TokenStream
		err := rows.Scan(&ts.Mint, &ts.PhaseID, &ts.CreatedAt, &ts.StartedAt, &ts.Creator, &ts.Status, &ts.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan stream row: %w", err)
		}
		streams = append(streams, &ts)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stream rows: %w", err)
	}

	return streams, nil
}
