package memory

import (
	"context"
	"sync"

	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// ATHStore is an in-memory implementation of storage.ATHStore.
type ATHStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ATHEntry // keyed by mint
}

// NewATHStore creates a new in-memory ATH store.
func NewATHStore() *ATHStore {
	return &ATHStore{data: make(map[string]*domain.ATHEntry)}
}

// Compile-time interface check.
var _ storage.ATHStore = (*ATHStore)(nil)

// UpsertBulk writes entries, keeping the stored maximum per mint.
func (s *ATHStore) UpsertBulk(_ context.Context, entries []*domain.ATHEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e == nil || e.Mint == "" {
			return storage.ErrInvalidInput
		}
		existing, ok := s.data[e.Mint]
		if ok && existing.Price >= e.Price {
			existing.UpdatedAt = e.UpdatedAt
			continue
		}
		entryCopy := *e
		s.data[e.Mint] = &entryCopy
	}

	return nil
}

// GetByMint retrieves the ATH for a mint. Returns ErrNotFound if not exists.
func (s *ATHStore) GetByMint(_ context.Context, mint string) (*domain.ATHEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	entryCopy := *e
	return &entryCopy, nil
}
