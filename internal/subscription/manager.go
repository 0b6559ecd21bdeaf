// Package subscription manages the binding of positions to bundles.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"credit-automation/internal/domain"
	"credit-automation/internal/observability"
	"credit-automation/internal/storage"
	"credit-automation/internal/trigger"
)

var (
	ErrUnknownBundle       = errors.New("unknown bundle")
	ErrUnknownSubscription = errors.New("unknown subscription")
	ErrNotOwner            = errors.New("caller is not the subscription owner")
	ErrInvalidParams       = errors.New("invalid runtime params")
)

// Manager creates and mutates subscriptions. Only a subscription's owner may change it.
type Manager struct {
	subs       storage.SubscriptionStore
	bundles    storage.BundleStore
	strategies storage.StrategyStore
	logger     *zap.Logger
	now        func() int64
}

// NewManager creates a Manager. A nil logger disables logging.
func NewManager(subs storage.SubscriptionStore, bundles storage.BundleStore, strategies storage.StrategyStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		subs:       subs,
		bundles:    bundles,
		strategies: strategies,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// SetClock replaces the wall clock used for CreatedAt/UpdatedAt.
func (m *Manager) SetClock(now func() int64) {
	m.now = now
}

// Activate subscribes owner's position to bundleID. The new subscription is active.
func (m *Manager) Activate(ctx context.Context, owner common.Address, bundleID int64, params domain.RuntimeParams) (id int64, err error) {
	defer func() { observability.RecordSubscriptionOp("activate", err) }()

	bundle, err := m.bundle(ctx, bundleID)
	if err != nil {
		return 0, err
	}
	if err := ValidateParams(params); err != nil {
		return 0, err
	}
	if err := m.checkBindings(ctx, bundle, params); err != nil {
		return 0, err
	}

	now := m.now()
	id, err = m.subs.Insert(ctx, &domain.Subscription{
		Owner:     owner,
		BundleID:  bundleID,
		Params:    params,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return 0, fmt.Errorf("store subscription: %w", err)
	}

	m.logger.Info("subscription activated",
		zap.Int64("subscription_id", id),
		zap.String("owner", owner.Hex()),
		zap.Int64("bundle_id", bundleID),
	)
	return id, nil
}

// Update replaces the runtime params of a subscription in place.
func (m *Manager) Update(ctx context.Context, caller common.Address, subID int64, params domain.RuntimeParams) (err error) {
	defer func() { observability.RecordSubscriptionOp("update", err) }()

	sub, err := m.owned(ctx, caller, subID)
	if err != nil {
		return err
	}
	if err := ValidateParams(params); err != nil {
		return err
	}
	bundle, err := m.bundle(ctx, sub.BundleID)
	if err != nil {
		return err
	}
	if err := m.checkBindings(ctx, bundle, params); err != nil {
		return err
	}
	if err := m.subs.UpdateParams(ctx, subID, params, m.now()); err != nil {
		return m.storeErr(subID, err)
	}

	m.logger.Info("subscription updated", zap.Int64("subscription_id", subID))
	return nil
}

// SetActive enables or disables a subscription. Setting the current value is a no-op.
func (m *Manager) SetActive(ctx context.Context, caller common.Address, subID int64, active bool) (err error) {
	defer func() { observability.RecordSubscriptionOp("set_active", err) }()

	sub, err := m.owned(ctx, caller, subID)
	if err != nil {
		return err
	}
	if sub.Active == active {
		return nil
	}
	if err := m.subs.SetActive(ctx, subID, active, m.now()); err != nil {
		return m.storeErr(subID, err)
	}

	m.logger.Info("subscription toggled", zap.Int64("subscription_id", subID), zap.Bool("active", active))
	return nil
}

// Remove deletes a subscription.
func (m *Manager) Remove(ctx context.Context, caller common.Address, subID int64) (err error) {
	defer func() { observability.RecordSubscriptionOp("remove", err) }()

	if _, err := m.owned(ctx, caller, subID); err != nil {
		return err
	}
	if err := m.subs.Delete(ctx, subID); err != nil {
		return m.storeErr(subID, err)
	}

	m.logger.Info("subscription removed", zap.Int64("subscription_id", subID))
	return nil
}

// Deactivate disables a subscription without an ownership check.
// The executor calls it after a one-shot strategy succeeds.
func (m *Manager) Deactivate(ctx context.Context, subID int64) error {
	if err := m.subs.SetActive(ctx, subID, false, m.now()); err != nil {
		return m.storeErr(subID, err)
	}
	return nil
}

// Get returns a subscription by id.
func (m *Manager) Get(ctx context.Context, subID int64) (*domain.Subscription, error) {
	sub, err := m.subs.GetByID(ctx, subID)
	if err != nil {
		return nil, m.storeErr(subID, err)
	}
	return sub, nil
}

// ListActive returns every active subscription ordered by id.
func (m *Manager) ListActive(ctx context.Context) ([]*domain.Subscription, error) {
	subs, err := m.subs.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	return subs, nil
}

// ListByOwner returns every subscription of owner ordered by id.
func (m *Manager) ListByOwner(ctx context.Context, owner common.Address) ([]*domain.Subscription, error) {
	subs, err := m.subs.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions of %s: %w", owner.Hex(), err)
	}
	return subs, nil
}

// owned loads subID and checks caller owns it, before any other validation.
func (m *Manager) owned(ctx context.Context, caller common.Address, subID int64) (*domain.Subscription, error) {
	sub, err := m.Get(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Owner != caller {
		return nil, fmt.Errorf("%w: subscription %d", ErrNotOwner, subID)
	}
	return sub, nil
}

func (m *Manager) bundle(ctx context.Context, bundleID int64) (*domain.Bundle, error) {
	b, err := m.bundles.GetByID(ctx, bundleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownBundle, bundleID)
		}
		return nil, fmt.Errorf("get bundle %d: %w", bundleID, err)
	}
	return b, nil
}

// checkBindings fails when params leave a parameter-bound trigger of any
// strategy in the bundle without a value.
func (m *Manager) checkBindings(ctx context.Context, b *domain.Bundle, params domain.RuntimeParams) error {
	for _, sid := range b.StrategyIDs {
		s, err := m.strategies.GetByID(ctx, sid)
		if err != nil {
			return fmt.Errorf("get strategy %d of bundle %d: %w", sid, b.ID, err)
		}
		for i, t := range s.Triggers {
			if _, err := trigger.Bind(t, params); err != nil {
				return fmt.Errorf("%w: strategy %d trigger %d: %w", ErrInvalidParams, sid, i, err)
			}
		}
	}
	return nil
}

func (m *Manager) storeErr(subID int64, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrUnknownSubscription, subID)
	}
	return fmt.Errorf("subscription %d: %w", subID, err)
}
