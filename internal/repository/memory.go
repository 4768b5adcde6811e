package repository

import (
	"context"
	"sync"

	"github.com/playsink/playsink/internal/state"
)

// MemoryHistoryRepo is an in-memory HistoryRepository for tests and for
// running without a database.
type MemoryHistoryRepo struct {
	mu      sync.Mutex
	history state.History
}

var _ state.HistoryRepository = (*MemoryHistoryRepo)(nil)

// NewMemoryHistoryRepository creates an empty in-memory repository.
func NewMemoryHistoryRepository() *MemoryHistoryRepo {
	return &MemoryHistoryRepo{history: state.History{}}
}

// LoadHistory returns a copy of the stored mapping.
func (r *MemoryHistoryRepo) LoadHistory(ctx context.Context) (state.History, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.Clone(), nil
}

// SaveHistory replaces the stored mapping.
func (r *MemoryHistoryRepo) SaveHistory(ctx context.Context, h state.History) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = h.Clone()
	return nil
}
