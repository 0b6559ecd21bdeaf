// Package registry holds the append-only strategy and bundle registries.
// Entries are validated once on registration and never updated or removed.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"credit-automation/internal/domain"
	"credit-automation/internal/observability"
	"credit-automation/internal/recipe"
	"credit-automation/internal/storage"
	"credit-automation/internal/trigger"
)

var (
	ErrNoTriggers      = errors.New("strategy needs at least one trigger")
	ErrEmptyBundle     = errors.New("bundle needs at least one strategy")
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrUnknownBundle   = errors.New("unknown bundle")

	ErrFlashLoanMismatch = errors.New("uses_flash_loan does not match the recipe")
)

var flashLoanID = domain.ActionIDFor(domain.FlashLoanAction)

// StrategySpec is the input to RegisterStrategy.
type StrategySpec struct {
	Name          string
	Calls         []domain.Call
	Triggers      []domain.Trigger
	UsesFlashLoan bool
	Continuous    bool
}

// Registry registers and resolves strategies and bundles.
type Registry struct {
	strategies storage.StrategyStore
	bundles    storage.BundleStore
	actions    recipe.Lookup
	logger     *zap.Logger
	now        func() int64
}

// Options for creating a Registry.
type Options struct {
	Strategies storage.StrategyStore
	Bundles    storage.BundleStore

	// Actions, when set, rejects recipes that call actions missing from the
	// dispatch table, so a registered strategy can always be decoded later.
	Actions recipe.Lookup

	Logger *zap.Logger
	Now    func() int64 // ms; defaults to wall clock
}

// New creates a Registry.
func New(opts Options) *Registry {
	r := &Registry{
		strategies: opts.Strategies,
		bundles:    opts.Bundles,
		actions:    opts.Actions,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = func() int64 { return time.Now().UnixMilli() }
	}
	return r
}

// RegisterStrategy validates and encodes the recipe and stores a new strategy.
// Encoder errors (recipe.ErrSchema, recipe.ErrDanglingReference) are returned wrapped.
func (r *Registry) RegisterStrategy(ctx context.Context, spec StrategySpec) (int64, error) {
	if len(spec.Triggers) == 0 {
		return 0, fmt.Errorf("strategy %q: %w", spec.Name, ErrNoTriggers)
	}
	for i, t := range spec.Triggers {
		if err := trigger.Validate(t); err != nil {
			return 0, fmt.Errorf("strategy %q: trigger %d: %w", spec.Name, i, err)
		}
	}

	payload, err := recipe.Encode(spec.Name, spec.Calls)
	if err != nil {
		return 0, fmt.Errorf("strategy %q: %w", spec.Name, err)
	}
	if r.actions != nil {
		for i, c := range spec.Calls {
			if _, ok := r.actions.Descriptor(c.Action.ID); !ok {
				return 0, fmt.Errorf("strategy %q: call %d: %w: %s", spec.Name, i, recipe.ErrUnknownAction, c.Action.Name)
			}
		}
	}
	if borrows := callsFlashLoan(spec.Calls); borrows != spec.UsesFlashLoan {
		return 0, fmt.Errorf("strategy %q: %w: declared %t, recipe borrows %t", spec.Name, ErrFlashLoanMismatch, spec.UsesFlashLoan, borrows)
	}

	id, err := r.strategies.Append(ctx, &domain.Strategy{
		Name:          spec.Name,
		Payload:       payload,
		Triggers:      append([]domain.Trigger(nil), spec.Triggers...),
		UsesFlashLoan: spec.UsesFlashLoan,
		Continuous:    spec.Continuous,
		CreatedAt:     r.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("store strategy %q: %w", spec.Name, err)
	}

	r.logger.Info("strategy registered",
		zap.Int64("strategy_id", id),
		zap.String("name", spec.Name),
		zap.Int("calls", len(spec.Calls)),
		zap.Int("triggers", len(spec.Triggers)),
		zap.String("payload_digest", recipe.Digest(payload)),
	)
	r.refreshGauges(ctx)
	return id, nil
}

func callsFlashLoan(calls []domain.Call) bool {
	for _, c := range calls {
		if c.Action.ID == flashLoanID {
			return true
		}
	}
	return false
}

// RegisterBundle stores an ordered list of existing strategy ids.
func (r *Registry) RegisterBundle(ctx context.Context, strategyIDs []int64) (int64, error) {
	if len(strategyIDs) == 0 {
		return 0, ErrEmptyBundle
	}
	for _, sid := range strategyIDs {
		if _, err := r.Strategy(ctx, sid); err != nil {
			return 0, err
		}
	}

	id, err := r.bundles.Append(ctx, &domain.Bundle{
		StrategyIDs: append([]int64(nil), strategyIDs...),
		CreatedAt:   r.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("store bundle: %w", err)
	}

	r.logger.Info("bundle registered", zap.Int64("bundle_id", id), zap.Int64s("strategy_ids", strategyIDs))
	r.refreshGauges(ctx)
	return id, nil
}

// Strategy resolves a strategy id. Returns ErrUnknownStrategy if not registered.
func (r *Registry) Strategy(ctx context.Context, id int64) (*domain.Strategy, error) {
	s, err := r.strategies.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy %d: %w", id, err)
	}
	return s, nil
}

// Bundle resolves a bundle id. Returns ErrUnknownBundle if not registered.
func (r *Registry) Bundle(ctx context.Context, id int64) (*domain.Bundle, error) {
	b, err := r.bundles.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBundle, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle %d: %w", id, err)
	}
	return b, nil
}

// StrategyCount returns the number of registered strategies.
func (r *Registry) StrategyCount(ctx context.Context) (int64, error) {
	return r.strategies.Count(ctx)
}

// BundleCount returns the number of registered bundles.
func (r *Registry) BundleCount(ctx context.Context) (int64, error) {
	return r.bundles.Count(ctx)
}

// Strategies lists registered strategies by id. limit <= 0 lists all from offset.
func (r *Registry) Strategies(ctx context.Context, offset, limit int64) ([]*domain.Strategy, error) {
	return r.strategies.List(ctx, offset, limit)
}

// Bundles lists registered bundles by id. limit <= 0 lists all from offset.
func (r *Registry) Bundles(ctx context.Context, offset, limit int64) ([]*domain.Bundle, error) {
	return r.bundles.List(ctx, offset, limit)
}

func (r *Registry) refreshGauges(ctx context.Context) {
	ns, err := r.strategies.Count(ctx)
	if err != nil {
		r.logger.Warn("count strategies", zap.Error(err))
		return
	}
	nb, err := r.bundles.Count(ctx)
	if err != nil {
		r.logger.Warn("count bundles", zap.Error(err))
		return
	}
	observability.UpdateRegistrySizes(ns, nb)
}
