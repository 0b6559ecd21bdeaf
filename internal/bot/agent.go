// Package bot polls active subscriptions and executes the first bundle
// variant whose triggers fire.
//
// Bots hold no locks. Several may run against the same subscriptions; the
// executor's in-transaction trigger re-check decides who wins.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"credit-automation/internal/domain"
	"credit-automation/internal/executor"
	"credit-automation/internal/observability"
	"credit-automation/internal/trigger"
)

// Defaults for Options.
const (
	DefaultPollInterval   = 30 * time.Second
	DefaultMaxConcurrency = 8
)

// Executor runs one strategy of a subscription. *executor.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, subID int64, strategyIndex int, runtimeArgs map[string]domain.Value) (*executor.Result, error)
}

// Subscriptions lists the work of one round. *subscription.Manager satisfies it.
type Subscriptions interface {
	ListActive(ctx context.Context) ([]*domain.Subscription, error)
}

// Resolver resolves bundles and strategies. *registry.Registry satisfies it.
type Resolver interface {
	Bundle(ctx context.Context, id int64) (*domain.Bundle, error)
	Strategy(ctx context.Context, id int64) (*domain.Strategy, error)
}

// Options for creating an Agent.
type Options struct {
	Subscriptions Subscriptions
	Registry      Resolver
	Executor      Executor
	Reader        trigger.Reader // off-chain readings used to pick a variant
	Planner       Planner

	PollInterval   time.Duration
	MaxConcurrency int
	Logger         *zap.Logger
}

// Agent is the off-chain bot.
type Agent struct {
	subs     Subscriptions
	registry Resolver
	exec     Executor
	reader   trigger.Reader
	planner  Planner
	interval time.Duration
	limit    int
	logger   *zap.Logger
}

// New creates an Agent.
func New(opts Options) *Agent {
	a := &Agent{
		subs:     opts.Subscriptions,
		registry: opts.Registry,
		exec:     opts.Executor,
		reader:   opts.Reader,
		planner:  opts.Planner,
		interval: opts.PollInterval,
		limit:    opts.MaxConcurrency,
		logger:   opts.Logger,
	}
	if a.interval <= 0 {
		a.interval = DefaultPollInterval
	}
	if a.limit <= 0 {
		a.limit = DefaultMaxConcurrency
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// Outcome is what happened to one subscription in a round.
type Outcome struct {
	SubscriptionID int64
	StrategyIndex  int    // index tried last, -1 when none was tried
	ExecutionID    string // set when a strategy executed
	Class          executor.Class
	Err            error // last error, nil when nothing was attempted or on success
}

// Executed reports whether a strategy ran for the subscription.
func (o Outcome) Executed() bool {
	return o.ExecutionID != ""
}

// Report summarizes one polling round.
type Report struct {
	RunID    string
	Active   int
	Executed int
	Outcomes []Outcome // in ListActive order
}

// RunOnce performs one polling round over every active subscription.
func (a *Agent) RunOnce(ctx context.Context) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := a.logger.With(zap.String("run_id", runID))

	subs, err := a.subs.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.limit)
	for i, sub := range subs {
		i, sub := i, sub
		g.Go(func() error {
			outcomes[i] = a.process(gctx, logger, sub)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{RunID: runID, Active: len(subs), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Executed() {
			report.Executed++
		}
	}

	elapsed := time.Since(start)
	observability.RecordPollRound(len(subs), elapsed.Seconds(), time.Now().Unix())
	logger.Info("poll round finished",
		zap.Int("active", report.Active),
		zap.Int("executed", report.Executed),
		zap.Duration("elapsed", elapsed),
	)
	return report, ctx.Err()
}

// Run polls until ctx is cancelled. A failed round is logged and retried next tick.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if _, err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("poll round failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// process walks the bundle from index 0 and executes the first variant whose
// triggers fire off-chain. A retryable failure falls through to the next index.
func (a *Agent) process(ctx context.Context, logger *zap.Logger, sub *domain.Subscription) Outcome {
	out := Outcome{SubscriptionID: sub.ID, StrategyIndex: -1}
	logger = logger.With(zap.Int64("subscription_id", sub.ID))

	bundle, err := a.registry.Bundle(ctx, sub.BundleID)
	if err != nil {
		out.Err, out.Class = err, executor.ClassConfig
		a.alert(logger, "UnknownBundle", err)
		return out
	}

	for idx, strategyID := range bundle.StrategyIDs {
		strategy, err := a.registry.Strategy(ctx, strategyID)
		if err != nil {
			out.Err, out.Class = err, executor.ClassConfig
			a.alert(logger, "UnknownStrategy", err)
			return out
		}

		check, err := trigger.Check(ctx, a.reader, strategy.Triggers, sub.Params, sub.Owner)
		if err != nil {
			if executor.IsBindError(err) {
				out.Err, out.Class = fmt.Errorf("%w: strategy %d: %w", executor.ErrUnboundParams, strategyID, err), executor.ClassConfig
				a.alert(logger, executor.Kind(out.Err), out.Err)
				return out
			}
			logger.Warn("read triggers", zap.Int64("strategy_id", strategyID), zap.Error(err))
			out.Err = err
			return out
		}
		if !check.Fired {
			continue
		}

		args, err := a.planner.Plan(ctx, sub, strategy)
		if err != nil {
			logger.Warn("plan runtime args", zap.Int64("strategy_id", strategyID), zap.Error(err))
			out.Err = err
			continue
		}

		out.StrategyIndex = idx
		res, err := a.exec.Execute(ctx, sub.ID, idx, args)
		if err == nil {
			out.ExecutionID, out.Err = res.ExecutionID, nil
			logger.Info("strategy executed",
				zap.Int("strategy_index", idx),
				zap.String("execution_id", res.ExecutionID),
				zap.String("reading", check.Reading.String()),
			)
			return out
		}

		out.Err, out.Class = err, executor.Classify(err)
		switch out.Class {
		case executor.ClassRetryable:
			observability.RecordBotFallback()
			logger.Info("strategy failed, trying next variant", zap.Int("strategy_index", idx), zap.Error(err))
			continue
		case executor.ClassNotYet:
			// Off-chain reading was stale; the ledger disagreed.
			logger.Debug("trigger not met on ledger", zap.Int("strategy_index", idx), zap.Error(err))
			return out
		case executor.ClassConfig:
			if errors.Is(err, executor.ErrInactiveSubscription) {
				// Deactivated after this round listed it, typically by a racing bot.
				logger.Debug("subscription deactivated during round", zap.Error(err))
				return out
			}
			a.alert(logger, executor.Kind(err), err)
			return out
		default:
			logger.Warn("execute", zap.Int("strategy_index", idx), zap.Error(err))
			return out
		}
	}
	return out
}

func (a *Agent) alert(logger *zap.Logger, kind string, err error) {
	observability.RecordBotAlert(kind)
	logger.Error("configuration error, operator attention needed", zap.String("kind", kind), zap.Error(err))
}
