// Package lifecycle drives tracked tokens through age-based phases and
// decides when their buffers flush.
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// Registry is the ordered table of lifecycle phases, loaded from the phase
// store and reloadable at runtime.
type Registry struct {
	store storage.PhaseStore

	mu     sync.RWMutex
	phases []*domain.Phase // ordered by ID ASC
	byID   map[int]*domain.Phase
}

// NewRegistry creates a registry backed by the given store.
func NewRegistry(store storage.PhaseStore) *Registry {
	return &Registry{
		store: store,
		byID:  make(map[int]*domain.Phase),
	}
}

// Load fetches the phase table. Returns an error if the table is empty.
func (r *Registry) Load(ctx context.Context) error {
	phases, err := r.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load phases: %w", err)
	}
	if len(phases) == 0 {
		return fmt.Errorf("phase table is empty")
	}

	sort.Slice(phases, func(i, j int) bool { return phases[i].ID < phases[j].ID })

	byID := make(map[int]*domain.Phase, len(phases))
	for _, p := range phases {
		byID[p.ID] = p
	}

	r.mu.Lock()
	r.phases = phases
	r.byID = byID
	r.mu.Unlock()

	return nil
}

// Resolve returns the phase with the given id.
func (r *Registry) Resolve(id int) (*domain.Phase, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// NextFor scans phases after the given id, in id order, for the first whose
// max-age still covers the token's age. Returns nil if none qualifies, which
// the caller treats as lifecycle exhaustion.
func (r *Registry) NextFor(afterID int, age time.Duration) *domain.Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.phases {
		if p.ID <= afterID {
			continue
		}
		if age <= time.Duration(p.MaxAgeMinutes)*time.Minute {
			return p
		}
	}
	return nil
}

// First returns the earliest phase. Registry must be loaded.
func (r *Registry) First() *domain.Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.phases) == 0 {
		return nil
	}
	return r.phases[0]
}

// Len returns the number of loaded phases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.phases)
}
