package memory

import (
	"context"
	"sort"
	"sync"

	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// RawTradeStore is an in-memory implementation of storage.RawTradeStore.
type RawTradeStore struct {
	mu     sync.RWMutex
	trades []*domain.RawTrade
}

// NewRawTradeStore creates a new in-memory raw trade store.
func NewRawTradeStore() *RawTradeStore {
	return &RawTradeStore{}
}

// Compile-time interface check.
var _ storage.RawTradeStore = (*RawTradeStore)(nil)

// InsertBulk appends raw trades.
func (s *RawTradeStore) InsertBulk(_ context.Context, trades []*domain.RawTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range trades {
		if t == nil || t.Mint == "" {
			return storage.ErrInvalidInput
		}
		tradeCopy := *t
		s.trades = append(s.trades, &tradeCopy)
	}
	return nil
}

// GetByMint retrieves all trades for a mint, ordered by timestamp ASC.
func (s *RawTradeStore) GetByMint(_ context.Context, mint string) ([]*domain.RawTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RawTrade
	for _, t := range s.trades {
		if t.Mint == mint {
			tradeCopy := *t
			result = append(result, &tradeCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// Count returns the total number of stored trades. Test helper.
func (s *RawTradeStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}
