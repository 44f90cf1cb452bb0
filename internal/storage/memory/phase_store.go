package memory

import (
	"context"
	"sort"
	"sync"

	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// PhaseStore is an in-memory implementation of storage.PhaseStore.
type PhaseStore struct {
	mu   sync.RWMutex
	data map[int]*domain.Phase
}

// NewPhaseStore creates a new in-memory phase store.
func NewPhaseStore() *PhaseStore {
	return &PhaseStore{data: make(map[int]*domain.Phase)}
}

// Compile-time interface check.
var _ storage.PhaseStore = (*PhaseStore)(nil)

// GetAll retrieves all phases ordered by id ASC.
func (s *PhaseStore) GetAll(_ context.Context) ([]*domain.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Phase, 0, len(s.data))
	for _, p := range s.data {
		phaseCopy := *p
		result = append(result, &phaseCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Upsert inserts or replaces a phase definition.
func (s *PhaseStore) Upsert(_ context.Context, p *domain.Phase) error {
	if p == nil || p.IntervalSeconds <= 0 || p.MaxAgeMinutes <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	phaseCopy := *p
	s.data[p.ID] = &phaseCopy
	return nil
}
