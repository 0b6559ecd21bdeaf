package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"credit-automation/internal/reporting"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "history [sub-id]",
		Short: "Report per-strategy execution statistics",
		Long: `Summarize the execution log per strategy. With a subscription id the report
also lists that subscription's attempts, oldest first.

Examples:
  automation history
  automation history 3 --format csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subID := int64(-1)
			if len(args) == 1 {
				id, err := parseSubID(args[0])
				if err != nil {
					return err
				}
				subID = id
			}

			a := opts.app
			report, err := reporting.NewGenerator(a.registry, a.executions, a.executions).Generate(cmd.Context(), subID)
			if err != nil {
				return fmt.Errorf("failed to generate report: %w", err)
			}

			out := cmd.OutOrStdout()
			switch format {
			case "markdown":
				fmt.Fprint(out, reporting.RenderMarkdown(report))
			case "csv":
				fmt.Fprint(out, reporting.RenderCSV(report.Strategies))
				if len(report.Executions) > 0 {
					fmt.Fprintln(out)
					fmt.Fprint(out, reporting.RenderExecutionsCSV(report.Executions))
				}
			default:
				return fmt.Errorf("unknown format %q (want markdown or csv)", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "output format: markdown or csv")
	return cmd
}
