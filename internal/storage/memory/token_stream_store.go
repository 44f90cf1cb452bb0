package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// TokenStreamStore is an in-memory implementation of storage.TokenStreamStore.
type TokenStreamStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TokenStream // keyed by mint
}

// NewTokenStreamStore creates a new in-memory token stream store.
func NewTokenStreamStore() *TokenStreamStore {
	return &TokenStreamStore{data: make(map[string]*domain.TokenStream)}
}

// Compile-time interface check.
var _ storage.TokenStreamStore = (*TokenStreamStore)(nil)

// Put inserts or replaces a stream row. Test seeding helper; the production
// writer of token_streams is the external activation pipeline.
func (s *TokenStreamStore) Put(ts *domain.TokenStream) {
	s.mu.Lock()
	defer s.mu.Unlock()

	streamCopy := *ts
	s.data[ts.Mint] = &streamCopy
}

// GetActive retrieves all streams with status "active".
func (s *TokenStreamStore) GetActive(_ context.Context) ([]*domain.TokenStream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TokenStream
	for _, ts := range s.data {
		if ts.Status == domain.StreamStatusActive {
			streamCopy := *ts
			result = append(result, &streamCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt < result[j].StartedAt
	})

	return result, nil
}

// GetByMint retrieves a stream by mint. Returns ErrNotFound if not exists.
func (s *TokenStreamStore) GetByMint(_ context.Context, mint string) (*domain.TokenStream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, exists := s.data[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	streamCopy := *ts
	return &streamCopy, nil
}

// UpdatePhase sets phase_id for an active stream.
func (s *TokenStreamStore) UpdatePhase(_ context.Context, mint string, phaseID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, exists := s.data[mint]
	if !exists || ts.Status != domain.StreamStatusActive {
		return storage.ErrNotFound
	}

	ts.PhaseID = phaseID
	ts.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// SetStatus sets a terminal status (graduated | finished).
func (s *TokenStreamStore) SetStatus(_ context.Context, mint string, status string) error {
	if status != domain.StreamStatusGraduated && status != domain.StreamStatusFinished {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, exists := s.data[mint]
	if !exists {
		return storage.ErrNotFound
	}

	ts.Status = status
	ts.UpdatedAt = time.Now().UnixMilli()
	return nil
}
