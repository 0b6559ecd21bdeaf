package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"credit-automation/internal/domain"
	"credit-automation/internal/storage"
)

// SubscriptionStore is an in-memory implementation of storage.SubscriptionStore.
type SubscriptionStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*domain.Subscription
}

// NewSubscriptionStore creates a new in-memory subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{
		data: make(map[int64]*domain.Subscription),
	}
}

// Insert stores a subscription under the next sequential id.
// Ids of deleted subscriptions are not reused.
func (s *SubscriptionStore) Insert(_ context.Context, sub *domain.Subscription) (int64, error) {
	if sub == nil {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *sub
	c.ID = s.nextID
	s.nextID++
	s.data[c.ID] = &c
	return c.ID, nil
}

// GetByID retrieves a subscription. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) GetByID(_ context.Context, id int64) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	c := *sub
	return &c, nil
}

// UpdateParams replaces runtime params. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) UpdateParams(_ context.Context, id int64, params domain.RuntimeParams, updatedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	sub.Params = params
	sub.UpdatedAt = updatedAt
	return nil
}

// SetActive toggles the active flag. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) SetActive(_ context.Context, id int64, active bool, updatedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	sub.Active = active
	sub.UpdatedAt = updatedAt
	return nil
}

// Delete removes a subscription. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, id)
	return nil
}

// ListActive returns all active subscriptions ordered by id.
func (s *SubscriptionStore) ListActive(_ context.Context) ([]*domain.Subscription, error) {
	return s.filter(func(sub *domain.Subscription) bool { return sub.Active }), nil
}

// ListByOwner returns all subscriptions of owner ordered by id.
func (s *SubscriptionStore) ListByOwner(_ context.Context, owner common.Address) ([]*domain.Subscription, error) {
	return s.filter(func(sub *domain.Subscription) bool { return sub.Owner == owner }), nil
}

func (s *SubscriptionStore) filter(keep func(*domain.Subscription) bool) []*domain.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Subscription
	for _, sub := range s.data {
		if keep(sub) {
			c := *sub
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)
