package postgres

import (
	"context"
	"fmt"

	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// PhaseStore implements storage.PhaseStore using PostgreSQL.
type PhaseStore struct {
	pool *Pool
}

// NewPhaseStore creates a new PhaseStore.
func NewPhaseStore(pool *Pool) *PhaseStore {
	return &PhaseStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PhaseStore = (*PhaseStore)(nil)

// GetAll retrieves all phases ordered by id ASC.
func (s *PhaseStore) GetAll(ctx context.Context) ([]*domain.Phase, error) {
	query := `
		SELECT id, interval_seconds, max_age_minutes, name
		FROM phases
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get phases: %w", err)
	}
	defer rows.Close()

	var phases []*domain.Phase
	for rows.Next() {
		var p domain.Phase
		if err := rows.Scan(&p.ID, &p.IntervalSeconds, &p.MaxAgeMinutes, &p.Name); err != nil {
			return nil, fmt.Errorf("scan phase row: %w", err)
		}
		phases = append(phases, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate phase rows: %w", err)
	}

	return phases, nil
}

// Upsert inserts or replaces a phase definition.
func (s *PhaseStore) Upsert(ctx context.Context, p *domain.Phase) error {
	if p == nil || p.IntervalSeconds <= 0 || p.MaxAgeMinutes <= 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO phases (id, interval_seconds, max_age_minutes, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			interval_seconds = EXCLUDED.interval_seconds,
			max_age_minutes = EXCLUDED.max_age_minutes,
			name = EXCLUDED.name
	`

	if _, err := s.pool.Exec(ctx, query, p.ID, p.IntervalSeconds, p.MaxAgeMinutes, p.Name); err != nil {
		return fmt.Errorf("upsert phase: %w", err)
	}
	return nil
}
