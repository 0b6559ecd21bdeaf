package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"credit-automation/internal/domain"
)

type pageFlags struct {
	offset int64
	limit  int64
}

func (p *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&p.offset, "offset", 0, "skip this many entries")
	cmd.Flags().Int64Var(&p.limit, "limit", 0, "show at most this many entries (0 = all)")
}

func newStrategiesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "Inspect registered strategies",
	}

	var page pageFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			strategies, err := opts.app.registry.Strategies(cmd.Context(), page.offset, page.limit)
			if err != nil {
				return fmt.Errorf("failed to list strategies: %w", err)
			}
			if len(strategies) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No strategies registered.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tFLASH\tCONTINUOUS\tTRIGGERS")
			fmt.Fprintln(w, "--\t----\t-----\t----------\t--------")
			for _, s := range strategies {
				fmt.Fprintf(w, "%d\t%s\t%t\t%t\t%s\n", s.ID, s.Name, s.UsesFlashLoan, s.Continuous, describeTriggers(s.Triggers))
			}
			return w.Flush()
		},
	}
	page.register(list)
	cmd.AddCommand(list)
	return cmd
}

func newBundlesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundles",
		Short: "Inspect registered bundles",
	}

	var page pageFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered bundles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bundles, err := opts.app.registry.Bundles(cmd.Context(), page.offset, page.limit)
			if err != nil {
				return fmt.Errorf("failed to list bundles: %w", err)
			}
			if len(bundles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No bundles registered.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tSTRATEGIES")
			fmt.Fprintln(w, "--\t----------")
			for _, b := range bundles {
				ids := make([]string, len(b.StrategyIDs))
				for i, id := range b.StrategyIDs {
					ids[i] = fmt.Sprint(id)
				}
				fmt.Fprintf(w, "%d\t%s\n", b.ID, strings.Join(ids, ","))
			}
			return w.Flush()
		},
	}
	page.register(list)
	cmd.AddCommand(list)
	return cmd
}

func describeTriggers(triggers []domain.Trigger) string {
	parts := make([]string, len(triggers))
	for i, t := range triggers {
		threshold := t.Threshold.String()
		if t.ThresholdParam != "" {
			threshold = "&" + t.ThresholdParam
		}
		parts[i] = fmt.Sprintf("%s %s %s", t.Kind, t.Operator, threshold)
	}
	return strings.Join(parts, " AND ")
}
