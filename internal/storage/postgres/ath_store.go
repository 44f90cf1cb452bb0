package postgres

import (
	"context"
	"fmt"

	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// ATHStore implements storage.ATHStore using PostgreSQL.
type ATHStore struct {
	pool *Pool
}

// NewATHStore creates a new ATHStore.
func NewATHStore(pool *Pool) *ATHStore {
	return &ATHStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ATHStore = (*ATHStore)(nil)

// UpsertBulk writes entries, keeping the stored maximum per mint.
// GREATEST guards against a stale in-memory value regressing the row.
func (s *ATHStore) UpsertBulk(ctx context.Context, entries []*domain.ATHEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO token_ath (mint, ath_price, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (mint) DO UPDATE SET
			ath_price = GREATEST(token_ath.ath_price, EXCLUDED.ath_price),
			updated_at = EXCLUDED.updated_at
	`

	for _, e := range entries {
		if e == nil || e.Mint == "" {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, query, e.Mint, e.Price, e.UpdatedAt); err != nil {
			return fmt.Errorf("upsert ath: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByMint retrieves the ATH for a mint. Returns ErrNotFound if not exists.
func (s *ATHStore) GetByMint(ctx context.Context, mint string) (*domain.ATHEntry, error) {
	query := `
		SELECT mint, ath_price, updated_at
		FROM token_ath
		WHERE mint = $1
	`

	var e domain.ATHEntry
	err := s.pool.QueryRow(ctx, query, mint).Scan(&e.Mint, &e.Price, &e.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get ath by mint: %w", err)
	}
	return &e, nil
}
