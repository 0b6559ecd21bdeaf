package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"credit-automation/internal/bot"
	"credit-automation/internal/domain"
	"credit-automation/internal/executor"
	"credit-automation/internal/ledger"
	"credit-automation/internal/recipe"
	"credit-automation/internal/simulation"
)

type executeOptions struct {
	ledgerPath  string
	args        map[string]string
	plan        bool
	feeBps      int64
	slippageBps int64
}

func newExecuteCommand(opts *rootOptions) *cobra.Command {
	eo := &executeOptions{}

	cmd := &cobra.Command{
		Use:   "execute <sub-id> <strategy-index>",
		Short: "Execute one strategy of a subscription against a ledger snapshot",
		Long: `Execute the strategy at <strategy-index> of the subscription's bundle.

The ledger is loaded from a snapshot file in the scenario ledger format. Runtime
arguments come from repeated --arg name=value flags, or from --plan, which sizes
the trade so the position lands on the subscription's target ratio.

Examples:
  automation execute 0 0 --ledger ledger.yaml --plan
  automation execute 0 1 --ledger ledger.yaml --arg amount=2.5 --arg minOut=4900`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			subID, err := parseSubID(args[0])
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid strategy index %q", args[1])
			}
			return runExecute(cmd, opts.app, eo, subID, index)
		},
	}

	cmd.Flags().StringVar(&eo.ledgerPath, "ledger", "", "ledger snapshot YAML file")
	cmd.Flags().StringToStringVar(&eo.args, "arg", nil, "runtime argument name=value (repeatable)")
	cmd.Flags().BoolVar(&eo.plan, "plan", false, "derive runtime arguments from the target ratio")
	cmd.Flags().Int64Var(&eo.feeBps, "fee-bps", -1, "swap fee assumed by --plan (default: the snapshot's)")
	cmd.Flags().Int64Var(&eo.slippageBps, "slippage-bps", 50, "slippage tolerance used by --plan")
	_ = cmd.MarkFlagRequired("ledger")
	cmd.MarkFlagsMutuallyExclusive("arg", "plan")

	return cmd
}

func runExecute(cmd *cobra.Command, a *app, eo *executeOptions, subID int64, index int) error {
	ctx := cmd.Context()

	l, feeBps, err := loadSnapshot(eo.ledgerPath)
	if err != nil {
		return err
	}
	if eo.feeBps >= 0 {
		feeBps = eo.feeBps
	}

	runtimeArgs, err := runtimeArguments(ctx, a, l, eo, feeBps, subID, index)
	if err != nil {
		return err
	}

	exec := executor.New(executor.Options{
		Subscriptions: a.subscriptions,
		Bundles:       a.bundles,
		Strategies:    a.strategies,
		Ledger:        l,
		Actions:       a.actions,
		Log:           a.executions,
		Logger:        a.logger,
	})

	res, err := exec.Execute(ctx, subID, index, runtimeArgs)
	if err != nil {
		return fmt.Errorf("%s: %w", executor.Kind(err), err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Execution %s\n", res.ExecutionID)
	fmt.Fprintf(out, "  strategy:    %d (index %d)\n", res.StrategyID, res.StrategyIndex)
	fmt.Fprintf(out, "  reading:     %s\n", res.Reading)
	for i, v := range res.Returns {
		fmt.Fprintf(out, "  $%d:          %s\n", i+1, v)
	}
	if res.Deactivated {
		fmt.Fprintln(out, "  subscription deactivated")
	}

	sub, err := a.manager.Get(ctx, subID)
	if err != nil {
		return nil
	}
	if ratio, err := l.Ratio(sub.Owner); err == nil {
		fmt.Fprintf(out, "  ratio after: %s\n", ratio.StringFixed(4))
	}
	return nil
}

// loadSnapshot reads the ledger and the swap fee it was configured with.
func loadSnapshot(path string) (*ledger.Ledger, int64, error) {
	setup, err := simulation.LoadLedgerSetup(path)
	if err != nil {
		return nil, 0, err
	}
	l, err := simulation.BuildLedger(*setup)
	if err != nil {
		return nil, 0, err
	}
	return l, setup.SwapFeeBps, nil
}

func runtimeArguments(ctx context.Context, a *app, l *ledger.Ledger, eo *executeOptions, feeBps, subID int64, index int) (map[string]domain.Value, error) {
	if !eo.plan && len(eo.args) == 0 {
		return nil, nil
	}

	sub, err := a.manager.Get(ctx, subID)
	if err != nil {
		return nil, err
	}
	bundle, err := a.registry.Bundle(ctx, sub.BundleID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(bundle.StrategyIDs) {
		return nil, fmt.Errorf("bundle %d has %d strategies: %w", bundle.ID, len(bundle.StrategyIDs), executor.ErrIndexOutOfRange)
	}
	strategy, err := a.registry.Strategy(ctx, bundle.StrategyIDs[index])
	if err != nil {
		return nil, err
	}

	if eo.plan {
		return bot.NewTargetRatioPlanner(l, feeBps, eo.slippageBps).Plan(ctx, sub, strategy)
	}

	r, err := recipe.Decode(strategy.Payload, a.actions)
	if err != nil {
		return nil, err
	}
	slots := make(map[string]domain.ParamType)
	for _, p := range recipe.RuntimeSlots(r) {
		slots[p.Name] = p.Type
	}

	names := make([]string, 0, len(eo.args))
	for name := range eo.args {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]domain.Value, len(eo.args))
	for _, name := range names {
		t, ok := slots[name]
		if !ok {
			return nil, fmt.Errorf("strategy %d has no runtime argument %%%s", strategy.ID, name)
		}
		v, err := domain.ParseValue(t, eo.args[name])
		if err != nil {
			return nil, fmt.Errorf("--arg %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
