// Package simulation runs scenarios end to end on the simulated ledger: it
// deploys strategies, activates subscriptions and drives execute calls and
// bot rounds against scripted state changes.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"credit-automation/internal/bot"
	"credit-automation/internal/config"
	"credit-automation/internal/domain"
	"credit-automation/internal/executor"
	"credit-automation/internal/ledger"
	"credit-automation/internal/protocol"
	"credit-automation/internal/registry"
	"credit-automation/internal/storage/memory"
	"credit-automation/internal/subscription"
	"credit-automation/internal/trigger"
)

// Runner errors
var (
	ErrExpectation = errors.New("expectation failed")
	ErrSetup       = errors.New("scenario setup failed")
)

// StepResult is the outcome of one flow step.
type StepResult struct {
	Index  int
	Name   string
	Kind   string
	Detail string // human-readable outcome
	Err    error  // non-nil when the step's expectation failed
}

// Passed reports whether the step met its expectation.
func (r StepResult) Passed() bool {
	return r.Err == nil
}

// Result is the outcome of a scenario run.
type Result struct {
	Scenario   string
	Deployment *config.Deployment
	Steps      []StepResult

	// State after the run, for reporting
	Registry     *registry.Registry
	ExecutionLog *memory.ExecutionLogStore
}

// Passed reports whether every step passed.
func (r *Result) Passed() bool {
	for _, s := range r.Steps {
		if !s.Passed() {
			return false
		}
	}
	return true
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Logger      *zap.Logger
	SlippageBps int64 // tolerance used by the planner, default 50
}

// Runner executes scenarios. Each Run starts from fresh in-memory state.
type Runner struct {
	logger      *zap.Logger
	slippageBps int64
}

// NewRunner creates a scenario runner.
func NewRunner(opts RunnerOptions) *Runner {
	r := &Runner{logger: opts.Logger, slippageBps: opts.SlippageBps}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.slippageBps == 0 {
		r.slippageBps = 50
	}
	return r
}

// world is the wired system under simulation.
type world struct {
	ledger  *ledger.Ledger
	reg     *registry.Registry
	log     *memory.ExecutionLogStore
	subs    *subscription.Manager
	exec    *executor.Executor
	agent   *bot.Agent
	planner *bot.TargetRatioPlanner
	owners  []common.Address
	subIDs  []int64
}

// Run executes sc. Setup errors abort the run; failed expectations are
// recorded per step and the flow continues.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	w, dep, err := r.setup(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	res := &Result{Scenario: sc.Name, Deployment: dep, Registry: w.reg, ExecutionLog: w.log}
	for i, step := range sc.Flow {
		sr := StepResult{Index: i, Name: step.Name, Kind: step.Kind()}
		sr.Detail, sr.Err = r.runStep(ctx, w, step)
		if sr.Err != nil {
			r.logger.Warn("step failed", zap.Int("step", i), zap.String("kind", sr.Kind), zap.Error(sr.Err))
		}
		res.Steps = append(res.Steps, sr)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}
	return res, nil
}

func (r *Runner) setup(ctx context.Context, sc *Scenario) (*world, *config.Deployment, error) {
	l, err := BuildLedger(sc.Ledger)
	if err != nil {
		return nil, nil, err
	}

	actions := protocol.NewRegistry()
	strategies := memory.NewStrategyStore()
	bundles := memory.NewBundleStore()
	subStore := memory.NewSubscriptionStore()
	execLog := memory.NewExecutionLogStore()

	// Scenario time comes from the ledger clock.
	var tick atomic.Int64
	now := func() int64 { return l.Now()*1000 + tick.Add(1) }

	reg := registry.New(registry.Options{Strategies: strategies, Bundles: bundles, Actions: actions, Logger: r.logger, Now: now})
	file, err := config.Load(sc.Spec)
	if err != nil {
		return nil, nil, err
	}
	dep, err := config.Deploy(ctx, reg, actions, file)
	if err != nil {
		return nil, nil, err
	}

	mgr := subscription.NewManager(subStore, bundles, strategies, r.logger)
	mgr.SetClock(now)

	w := &world{ledger: l, reg: reg, log: execLog, subs: mgr}
	for i, s := range sc.Subscriptions {
		bundleID, ok := dep.Bundles[s.Bundle]
		if !ok {
			return nil, nil, fmt.Errorf("subscriptions[%d]: unknown bundle %q", i, s.Bundle)
		}
		owner, err := parseOwner(s.Owner)
		if err != nil {
			return nil, nil, fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
		params, err := s.params()
		if err != nil {
			return nil, nil, fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
		id, err := mgr.Activate(ctx, owner, bundleID, params)
		if err != nil {
			return nil, nil, fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
		w.owners = append(w.owners, owner)
		w.subIDs = append(w.subIDs, id)
	}

	w.exec = executor.New(executor.Options{
		Subscriptions: subStore,
		Bundles:       bundles,
		Strategies:    strategies,
		Ledger:        l,
		Actions:       actions,
		Log:           execLog,
		Logger:        r.logger,
		Now:           now,
	})
	w.planner = bot.NewTargetRatioPlanner(l, sc.Ledger.SwapFeeBps, r.slippageBps)
	w.agent = bot.New(bot.Options{
		Subscriptions:  mgr,
		Registry:       reg,
		Executor:       w.exec,
		Reader:         trigger.FromState(l),
		Planner:        w.planner,
		MaxConcurrency: 1,
		Logger:         r.logger,
	})
	return w, dep, nil
}

func (r *Runner) runStep(ctx context.Context, w *world, step Step) (string, error) {
	switch {
	case step.SetPrice != nil:
		p, err := decimal.NewFromString(step.SetPrice.Price)
		if err != nil {
			return "", fmt.Errorf("price %q: %w", step.SetPrice.Price, err)
		}
		if !p.IsPositive() {
			return "", fmt.Errorf("price %q: %w", step.SetPrice.Price, ledger.ErrInvalidPrice)
		}
		w.ledger.SetPrice(step.SetPrice.Asset, p)
		return fmt.Sprintf("asset %d price -> %s", step.SetPrice.Asset, p), nil

	case step.Execute != nil:
		return r.execute(ctx, w, step.Execute)

	case step.BotRound != nil:
		report, err := w.agent.RunOnce(ctx)
		if err != nil {
			return "", err
		}
		detail := fmt.Sprintf("active %d, executed %d", report.Active, report.Executed)
		if report.Executed != step.BotRound.ExpectExecuted {
			return detail, fmt.Errorf("%w: executed %d, want %d", ErrExpectation, report.Executed, step.BotRound.ExpectExecuted)
		}
		return detail, nil

	case step.ExpectRatio != nil:
		e := step.ExpectRatio
		ratio, err := w.ledger.Ratio(w.owners[e.Subscription])
		if err != nil {
			return "", err
		}
		detail := "ratio " + ratio.StringFixed(4)
		if e.Min != "" {
			lo, err := decimal.NewFromString(e.Min)
			if err != nil {
				return detail, fmt.Errorf("min %q: %w", e.Min, err)
			}
			if ratio.LessThan(lo.Sub(protocol.RatioTolerance)) {
				return detail, fmt.Errorf("%w: ratio %s below %s", ErrExpectation, ratio.StringFixed(4), e.Min)
			}
		}
		if e.Max != "" {
			hi, err := decimal.NewFromString(e.Max)
			if err != nil {
				return detail, fmt.Errorf("max %q: %w", e.Max, err)
			}
			if ratio.GreaterThan(hi.Add(protocol.RatioTolerance)) {
				return detail, fmt.Errorf("%w: ratio %s above %s", ErrExpectation, ratio.StringFixed(4), e.Max)
			}
		}
		return detail, nil

	case step.SetActive != nil:
		s := step.SetActive
		if err := w.subs.SetActive(ctx, w.owners[s.Subscription], w.subIDs[s.Subscription], s.Active); err != nil {
			return "", err
		}
		return fmt.Sprintf("subscription %d active=%t", w.subIDs[s.Subscription], s.Active), nil
	}
	return "", errors.New("empty step")
}

func (r *Runner) execute(ctx context.Context, w *world, e *ExecuteStep) (string, error) {
	subID := w.subIDs[e.Subscription]
	sub, err := w.subs.Get(ctx, subID)
	if err != nil {
		return "", err
	}

	// An unplannable position executes without runtime args and is
	// rejected by the trigger re-check or argument resolution.
	args, err := w.planner.Plan(ctx, sub, nil)
	if err != nil {
		args = nil
	}

	res, err := w.exec.Execute(ctx, subID, e.StrategyIndex, args)
	got := executor.Kind(err)
	detail := "success"
	if res != nil {
		detail = fmt.Sprintf("success (reading %s, execution %s)", res.Reading.StringFixed(4), res.ExecutionID)
	}
	if err != nil {
		detail = got
	}
	if got != e.Expect {
		want := e.Expect
		if want == "" {
			want = "success"
		}
		return detail, fmt.Errorf("%w: got %s, want %s: %v", ErrExpectation, detail, want, err)
	}
	return detail, nil
}

// BuildLedger creates a ledger in the given initial state.
func BuildLedger(s LedgerSetup) (*ledger.Ledger, error) {
	var opts []ledger.Option
	if s.MinRatio != "" {
		v, err := decimal.NewFromString(s.MinRatio)
		if err != nil {
			return nil, fmt.Errorf("min_ratio: %w", err)
		}
		opts = append(opts, ledger.WithMinRatio(v))
	}
	if s.SwapFeeBps != 0 {
		opts = append(opts, ledger.WithSwapFeeBps(s.SwapFeeBps))
	}
	l := ledger.New(opts...)

	for asset, p := range s.Prices {
		v, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("price of %d: %w", asset, err)
		}
		if !v.IsPositive() {
			return nil, fmt.Errorf("price of %d: %w", asset, ledger.ErrInvalidPrice)
		}
		l.SetPrice(asset, v)
	}
	for asset, q := range s.FlashLiquidity {
		v, err := decimal.NewFromString(q)
		if err != nil {
			return nil, fmt.Errorf("flash liquidity of %d: %w", asset, err)
		}
		l.SetFlashLiquidity(asset, v)
	}
	if s.GasPrice != "" {
		v, err := decimal.NewFromString(s.GasPrice)
		if err != nil {
			return nil, fmt.Errorf("gas_price: %w", err)
		}
		l.SetGasPrice(v)
	}
	if s.Clock != 0 {
		l.SetClock(s.Clock)
	}

	for i, p := range s.Positions {
		owner, err := parseOwner(p.Owner)
		if err != nil {
			return nil, fmt.Errorf("positions[%d]: %w", i, err)
		}
		coll, err := decimal.NewFromString(p.Collateral)
		if err != nil {
			return nil, fmt.Errorf("positions[%d] collateral: %w", i, err)
		}
		debt, err := decimal.NewFromString(p.Debt)
		if err != nil {
			return nil, fmt.Errorf("positions[%d] debt: %w", i, err)
		}
		l.OpenPosition(owner, p.CollateralAsset, coll, p.DebtAsset, debt)
	}
	return l, nil
}

// params converts the setup into runtime params.
func (s SubscriptionSetup) params() (domain.RuntimeParams, error) {
	p := domain.RuntimeParams{
		CollateralAssetID: s.CollateralAsset,
		DebtAssetID:       s.DebtAsset,
	}
	for _, f := range []struct {
		in  string
		out *decimal.Decimal
	}{
		{s.LowerThreshold, &p.LowerThreshold},
		{s.UpperThreshold, &p.UpperThreshold},
		{s.TargetRatio, &p.TargetRatio},
	} {
		if f.in == "" {
			continue
		}
		v, err := decimal.NewFromString(f.in)
		if err != nil {
			return p, fmt.Errorf("threshold %q: %w", f.in, err)
		}
		*f.out = v
	}
	return p, nil
}

func parseOwner(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid owner address %q", s)
	}
	return common.HexToAddress(s), nil
}
