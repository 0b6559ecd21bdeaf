// Package executor runs a subscription's strategy against the ledger.
//
// An attempt walks lookup, liveness, trigger re-check and recipe execution.
// The trigger re-check and the recipe run inside one ledger transaction, so
// either every step of the recipe takes effect or none does, and two callers
// racing on the same subscription are serialized by the ledger.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"credit-automation/internal/action"
	"credit-automation/internal/domain"
	"credit-automation/internal/idhash"
	"credit-automation/internal/ledger"
	"credit-automation/internal/observability"
	"credit-automation/internal/recipe"
	"credit-automation/internal/storage"
	"credit-automation/internal/trigger"
)

// Result describes a successful execution.
type Result struct {
	ExecutionID    string
	SubscriptionID int64
	StrategyID     int64
	StrategyIndex  int
	Reading        decimal.Decimal // first trigger reading inside the transaction
	Returns        []domain.Value  // return value of each call, in order
	Deactivated    bool
}

// Executor executes strategies. It is safe for concurrent use.
type Executor struct {
	subs       storage.SubscriptionStore
	bundles    storage.BundleStore
	strategies storage.StrategyStore
	log        storage.ExecutionLogStore
	ledger     *ledger.Ledger
	actions    *action.Registry
	logger     *zap.Logger
	now        func() int64

	attempts atomic.Uint64
}

// Options for creating an Executor.
type Options struct {
	Subscriptions storage.SubscriptionStore
	Bundles       storage.BundleStore
	Strategies    storage.StrategyStore
	Ledger        *ledger.Ledger
	Actions       *action.Registry

	// Log receives one record per attempt. Optional.
	Log storage.ExecutionLogStore

	Logger *zap.Logger
	Now    func() int64 // ms; defaults to wall clock
}

// New creates an Executor.
func New(opts Options) *Executor {
	e := &Executor{
		subs:       opts.Subscriptions,
		bundles:    opts.Bundles,
		strategies: opts.Strategies,
		log:        opts.Log,
		ledger:     opts.Ledger,
		actions:    opts.Actions,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = func() int64 { return time.Now().UnixMilli() }
	}
	return e
}

// Execute runs the strategy at strategyIndex of the subscription's bundle.
// runtimeArgs supplies the recipe's %name slots.
func (e *Executor) Execute(ctx context.Context, subID int64, strategyIndex int, runtimeArgs map[string]domain.Value) (*Result, error) {
	start := time.Now()
	rec := &domain.ExecutionRecord{
		SubscriptionID: subID,
		BundleID:       -1,
		StrategyID:     -1,
		StrategyIndex:  strategyIndex,
		ExecutedAt:     e.now(),
	}

	res, err := e.execute(ctx, rec, runtimeArgs)

	rec.ExecutionID = idhash.ComputeExecutionID(subID, strategyIndex, rec.StrategyID, rec.ExecutedAt, e.attempts.Add(1))
	e.record(ctx, rec, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	res.ExecutionID = rec.ExecutionID
	return res, nil
}

func (e *Executor) execute(ctx context.Context, rec *domain.ExecutionRecord, runtimeArgs map[string]domain.Value) (*Result, error) {
	sub, err := e.subs.GetByID(ctx, rec.SubscriptionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownSubscription, rec.SubscriptionID)
		}
		return nil, fmt.Errorf("get subscription %d: %w", rec.SubscriptionID, err)
	}
	rec.BundleID = sub.BundleID

	strategy, err := e.resolve(ctx, sub.BundleID, rec.StrategyIndex)
	if err != nil {
		return nil, err
	}
	rec.StrategyID = strategy.ID
	rec.PayloadDigest = recipe.Digest(strategy.Payload)

	if !sub.Active {
		return nil, fmt.Errorf("%w: %d", ErrInactiveSubscription, sub.ID)
	}

	decoded, err := recipe.Decode(strategy.Payload, e.actions)
	if err != nil {
		return nil, fmt.Errorf("%w: strategy %d: %w", ErrExecutionFailed, strategy.ID, err)
	}

	res := &Result{
		SubscriptionID: sub.ID,
		StrategyID:     strategy.ID,
		StrategyIndex:  rec.StrategyIndex,
	}
	err = e.ledger.Execute(ctx, func(tx *ledger.Tx) error {
		// Another caller may have won the race while this one waited for the lock.
		cur, err := e.subs.GetByID(ctx, sub.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrUnknownSubscription, sub.ID)
			}
			return fmt.Errorf("reload subscription %d: %w", sub.ID, err)
		}
		if !cur.Active {
			return fmt.Errorf("%w: %d", ErrInactiveSubscription, cur.ID)
		}

		out, err := trigger.Check(ctx, trigger.FromState(tx), strategy.Triggers, cur.Params, cur.Owner)
		if err != nil {
			if IsBindError(err) {
				return fmt.Errorf("%w: subscription %d: %w", ErrUnboundParams, cur.ID, err)
			}
			return fmt.Errorf("%w: %w", ErrTriggerNotMet, err)
		}
		rec.Reading = out.Reading
		res.Reading = out.Reading
		if !out.Fired {
			return fmt.Errorf("%w: strategy %d, reading %s", ErrTriggerNotMet, strategy.ID, out.Reading)
		}

		returns, err := e.run(tx, decoded, cur, runtimeArgs)
		if err != nil {
			return fmt.Errorf("%w: strategy %d: %w", ErrExecutionFailed, strategy.ID, err)
		}
		if err := tx.Settled(); err != nil {
			return fmt.Errorf("%w: strategy %d: %w", ErrExecutionFailed, strategy.ID, err)
		}
		res.Returns = returns

		if !strategy.Continuous {
			if err := e.subs.SetActive(ctx, cur.ID, false, e.now()); err != nil {
				return fmt.Errorf("%w: deactivate subscription %d: %w", ErrExecutionFailed, cur.ID, err)
			}
			res.Deactivated = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rec.Deactivated = res.Deactivated
	return res, nil
}

// resolve maps (bundle, index) to a strategy. A missing bundle or strategy is
// reported as an out-of-range index.
func (e *Executor) resolve(ctx context.Context, bundleID int64, index int) (*domain.Strategy, error) {
	bundle, err := e.bundles.GetByID(ctx, bundleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: bundle %d not found", ErrIndexOutOfRange, bundleID)
		}
		return nil, fmt.Errorf("get bundle %d: %w", bundleID, err)
	}
	if index < 0 || index >= len(bundle.StrategyIDs) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(bundle.StrategyIDs))
	}

	strategyID := bundle.StrategyIDs[index]
	strategy, err := e.strategies.GetByID(ctx, strategyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: strategy %d not found", ErrIndexOutOfRange, strategyID)
		}
		return nil, fmt.Errorf("get strategy %d: %w", strategyID, err)
	}
	return strategy, nil
}

// run resolves each call's arguments and dispatches it in order.
func (e *Executor) run(tx *ledger.Tx, r domain.Recipe, sub *domain.Subscription, runtimeArgs map[string]domain.Value) ([]domain.Value, error) {
	env := action.Env{Tx: tx, Owner: sub.Owner}
	returns := make([]domain.Value, 0, len(r.Calls))

	for i, c := range r.Calls {
		args := make([]domain.Value, len(c.Args))
		for j, a := range c.Args {
			v, err := resolveArgument(a, c.Action.Inputs[j].Type, returns, sub, runtimeArgs)
			if err != nil {
				return nil, fmt.Errorf("call %d (%s) arg %s: %w", i+1, c.Action.Name, c.Action.Inputs[j].Name, err)
			}
			args[j] = v
		}

		out, err := e.actions.Dispatch(env, c.Action.ID, args)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i+1, err)
		}
		returns = append(returns, out)
	}
	return returns, nil
}

func resolveArgument(a domain.Argument, want domain.ParamType, returns []domain.Value, sub *domain.Subscription, runtimeArgs map[string]domain.Value) (domain.Value, error) {
	switch a.Kind {
	case domain.ArgLiteral:
		return a.Value, nil
	case domain.ArgReturn:
		// Decode has checked 1 <= Ref <= position.
		return returns[a.Ref-1], nil
	case domain.ArgSubSlot:
		v, ok := sub.Params.Slot(a.Name, sub.Owner)
		if !ok {
			return domain.Value{}, fmt.Errorf("%w: &%s", ErrUnknownSlot, a.Name)
		}
		return v, nil
	case domain.ArgRuntime:
		v, ok := runtimeArgs[a.Name]
		if !ok {
			return domain.Value{}, fmt.Errorf("%w: %%%s", ErrMissingArgument, a.Name)
		}
		if v.Type != want {
			return domain.Value{}, fmt.Errorf("%w: %%%s is %q, want %q", ErrArgumentType, a.Name, v.Type, want)
		}
		return v, nil
	default:
		return domain.Value{}, fmt.Errorf("unknown argument kind %d", a.Kind)
	}
}

func (e *Executor) record(ctx context.Context, rec *domain.ExecutionRecord, err error, elapsed time.Duration) {
	rec.Status = domain.ExecutionSuccess
	if err != nil {
		rec.Status = domain.ExecutionRejected
		rec.ErrorKind = Kind(err)
		rec.ErrorMessage = err.Error()
	}
	observability.RecordExecution(string(rec.Status), rec.ErrorKind, elapsed.Seconds())

	fields := []zap.Field{
		zap.String("execution_id", rec.ExecutionID),
		zap.Int64("subscription_id", rec.SubscriptionID),
		zap.Int("strategy_index", rec.StrategyIndex),
		zap.Int64("strategy_id", rec.StrategyID),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		e.logger.Debug("execution rejected", append(fields, zap.String("kind", rec.ErrorKind), zap.Error(err))...)
	} else {
		e.logger.Info("execution succeeded", append(fields, zap.Bool("deactivated", rec.Deactivated))...)
	}

	if e.log == nil {
		return
	}
	// The audit write must not be lost to a cancelled caller.
	if lerr := e.log.Insert(context.WithoutCancel(ctx), rec); lerr != nil {
		e.logger.Warn("write execution record", zap.String("execution_id", rec.ExecutionID), zap.Error(lerr))
	}
}
