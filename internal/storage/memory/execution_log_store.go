package memory

import (
	"context"
	"sort"
	"sync"

	"credit-automation/internal/domain"
	"credit-automation/internal/storage"
)

// ExecutionLogStore is an in-memory implementation of storage.ExecutionLogStore
// and storage.ExecutionStatsStore.
type ExecutionLogStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.ExecutionRecord // keyed by execution_id
	order []string                           // insertion order, breaks executed_at ties
}

// NewExecutionLogStore creates a new in-memory execution log.
func NewExecutionLogStore() *ExecutionLogStore {
	return &ExecutionLogStore{
		data: make(map[string]*domain.ExecutionRecord),
	}
}

// Insert adds a record. Returns ErrDuplicateKey if execution_id exists.
func (s *ExecutionLogStore) Insert(_ context.Context, r *domain.ExecutionRecord) error {
	if r == nil || r.ExecutionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ExecutionID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.ExecutionID] = &copy
	s.order = append(s.order, r.ExecutionID)
	return nil
}

// GetBySubscription returns records of a subscription ordered by executed_at ASC.
func (s *ExecutionLogStore) GetBySubscription(_ context.Context, subscriptionID int64) ([]*domain.ExecutionRecord, error) {
	return s.filter(func(r *domain.ExecutionRecord) bool { return r.SubscriptionID == subscriptionID }), nil
}

// GetByStrategy returns records of a strategy ordered by executed_at ASC.
func (s *ExecutionLogStore) GetByStrategy(_ context.Context, strategyID int64) ([]*domain.ExecutionRecord, error) {
	return s.filter(func(r *domain.ExecutionRecord) bool { return r.StrategyID == strategyID }), nil
}

// StrategyStats aggregates the records of one strategy.
func (s *ExecutionLogStore) StrategyStats(_ context.Context, strategyID int64) (*domain.ExecutionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.ExecutionStats{
		StrategyID:  strategyID,
		ByErrorKind: make(map[string]int64),
	}
	for _, r := range s.data {
		if r.StrategyID != strategyID {
			continue
		}
		stats.Attempts++
		if r.Status == domain.ExecutionSuccess {
			stats.Successes++
		} else {
			stats.Rejections++
			stats.ByErrorKind[r.ErrorKind]++
		}
		if r.ExecutedAt > stats.LastAt {
			stats.LastAt = r.ExecutedAt
		}
	}
	return stats, nil
}

func (s *ExecutionLogStore) filter(keep func(*domain.ExecutionRecord) bool) []*domain.ExecutionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutionRecord
	for _, id := range s.order {
		r := s.data[id]
		if keep(r) {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ExecutedAt < result[j].ExecutedAt
	})
	return result
}

var (
	_ storage.ExecutionLogStore   = (*ExecutionLogStore)(nil)
	_ storage.ExecutionStatsStore = (*ExecutionLogStore)(nil)
)
