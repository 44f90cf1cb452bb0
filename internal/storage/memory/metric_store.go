package memory

import (
	"context"
	"sort"
	"sync"

	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// MetricStore is an in-memory implementation of storage.MetricStore.
type MetricStore struct {
	mu   sync.RWMutex
	rows []*domain.MetricRow
}

// NewMetricStore creates a new in-memory metric store.
func NewMetricStore() *MetricStore {
	return &MetricStore{}
}

// Compile-time interface check.
var _ storage.MetricStore = (*MetricStore)(nil)

// InsertBulk appends metric rows.
func (s *MetricStore) InsertBulk(_ context.Context, rows []*domain.MetricRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		if r == nil || r.Mint == "" {
			return storage.ErrInvalidInput
		}
		rowCopy := *r
		s.rows = append(s.rows, &rowCopy)
	}
	return nil
}

// GetByMint retrieves all rows for a mint, ordered by bucket_start ASC.
func (s *MetricStore) GetByMint(_ context.Context, mint string) ([]*domain.MetricRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MetricRow
	for _, r := range s.rows {
		if r.Mint == mint {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart < result[j].BucketStart
	})

	return result, nil
}

// Count returns the total number of stored rows. Test helper.
func (s *MetricStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
