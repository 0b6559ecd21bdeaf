package memory

import (
	"context"
	"sync"

	"credit-automation/internal/domain"
	"credit-automation/internal/storage"
)

// StrategyStore is an in-memory implementation of storage.StrategyStore.
// The slice index is the strategy id.
type StrategyStore struct {
	mu   sync.RWMutex
	data []*domain.Strategy
}

// NewStrategyStore creates a new in-memory strategy store.
func NewStrategyStore() *StrategyStore {
	return &StrategyStore{}
}

// Append stores a strategy under the next sequential id.
func (s *StrategyStore) Append(_ context.Context, st *domain.Strategy) (int64, error) {
	if st == nil || len(st.Payload) == 0 {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := cloneStrategy(st)
	c.ID = int64(len(s.data))
	s.data = append(s.data, c)
	return c.ID, nil
}

// GetByID retrieves a strategy. Returns ErrNotFound if not exists.
func (s *StrategyStore) GetByID(_ context.Context, id int64) (*domain.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 0 || id >= int64(len(s.data)) {
		return nil, storage.ErrNotFound
	}
	return cloneStrategy(s.data[id]), nil
}

// Count returns the number of stored strategies.
func (s *StrategyStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

// List returns up to limit strategies starting at offset.
func (s *StrategyStore) List(_ context.Context, offset, limit int64) ([]*domain.Strategy, error) {
	if offset < 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := window(int64(len(s.data)), offset, limit)
	result := make([]*domain.Strategy, 0, to-from)
	for _, st := range s.data[from:to] {
		result = append(result, cloneStrategy(st))
	}
	return result, nil
}

var _ storage.StrategyStore = (*StrategyStore)(nil)
