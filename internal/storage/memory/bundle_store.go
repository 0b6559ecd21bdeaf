package memory

import (
	"context"
	"sync"

	"credit-automation/internal/domain"
	"credit-automation/internal/storage"
)

// BundleStore is an in-memory implementation of storage.BundleStore.
type BundleStore struct {
	mu   sync.RWMutex
	data []*domain.Bundle
}

// NewBundleStore creates a new in-memory bundle store.
func NewBundleStore() *BundleStore {
	return &BundleStore{}
}

// Append stores a bundle under the next sequential id.
func (s *BundleStore) Append(_ context.Context, b *domain.Bundle) (int64, error) {
	if b == nil || len(b.StrategyIDs) == 0 {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := cloneBundle(b)
	c.ID = int64(len(s.data))
	s.data = append(s.data, c)
	return c.ID, nil
}

// GetByID retrieves a bundle. Returns ErrNotFound if not exists.
func (s *BundleStore) GetByID(_ context.Context, id int64) (*domain.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 0 || id >= int64(len(s.data)) {
		return nil, storage.ErrNotFound
	}
	return cloneBundle(s.data[id]), nil
}

// Count returns the number of stored bundles.
func (s *BundleStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

// List returns up to limit bundles starting at offset.
func (s *BundleStore) List(_ context.Context, offset, limit int64) ([]*domain.Bundle, error) {
	if offset < 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := window(int64(len(s.data)), offset, limit)
	result := make([]*domain.Bundle, 0, to-from)
	for _, b := range s.data[from:to] {
		result = append(result, cloneBundle(b))
	}
	return result, nil
}

var _ storage.BundleStore = (*BundleStore)(nil)
