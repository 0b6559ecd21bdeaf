package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"credit-automation/internal/domain"
)

// StrategyStore is the append-only strategy arena. Ids are assigned
// sequentially from 0 and never reused.
type StrategyStore interface {
	// Append stores a strategy and returns its id. The input's ID is ignored.
	Append(ctx context.Context, s *domain.Strategy) (int64, error)

	// GetByID retrieves a strategy. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Strategy, error)

	// Count returns the number of stored strategies.
	Count(ctx context.Context) (int64, error)

	// List returns up to limit strategies starting at id offset, ordered by id.
	List(ctx context.Context, offset, limit int64) ([]*domain.Strategy, error)
}

// BundleStore is the append-only bundle arena.
type BundleStore interface {
	// Append stores a bundle and returns its id. The input's ID is ignored.
	Append(ctx context.Context, b *domain.Bundle) (int64, error)

	// GetByID retrieves a bundle. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Bundle, error)

	// Count returns the number of stored bundles.
	Count(ctx context.Context) (int64, error)

	// List returns up to limit bundles starting at id offset, ordered by id.
	List(ctx context.Context, offset, limit int64) ([]*domain.Bundle, error)
}

// SubscriptionStore holds mutable subscriptions.
type SubscriptionStore interface {
	// Insert stores a subscription and returns its id. The input's ID is ignored.
	Insert(ctx context.Context, s *domain.Subscription) (int64, error)

	// GetByID retrieves a subscription. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Subscription, error)

	// UpdateParams replaces runtime params in place. Returns ErrNotFound if not exists.
	UpdateParams(ctx context.Context, id int64, params domain.RuntimeParams, updatedAt int64) error

	// SetActive toggles the active flag. Returns ErrNotFound if not exists.
	SetActive(ctx context.Context, id int64, active bool, updatedAt int64) error

	// Delete removes a subscription. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, id int64) error

	// ListActive returns all active subscriptions ordered by id.
	ListActive(ctx context.Context) ([]*domain.Subscription, error)

	// ListByOwner returns all subscriptions of owner ordered by id.
	ListByOwner(ctx context.Context, owner common.Address) ([]*domain.Subscription, error)
}

// ExecutionLogStore is the append-only audit log of execute attempts.
type ExecutionLogStore interface {
	// Insert adds a record. Returns ErrDuplicateKey if execution_id exists.
	Insert(ctx context.Context, r *domain.ExecutionRecord) error

	// GetBySubscription returns records of a subscription ordered by executed_at ASC.
	GetBySubscription(ctx context.Context, subscriptionID int64) ([]*domain.ExecutionRecord, error)

	// GetByStrategy returns records of a strategy ordered by executed_at ASC.
	GetByStrategy(ctx context.Context, strategyID int64) ([]*domain.ExecutionRecord, error)
}

// ExecutionStatsStore aggregates the execution log per strategy.
type ExecutionStatsStore interface {
	// StrategyStats returns attempt counts for one strategy. A strategy without
	// records yields zero counts, not ErrNotFound.
	StrategyStats(ctx context.Context, strategyID int64) (*domain.ExecutionStats, error)
}
