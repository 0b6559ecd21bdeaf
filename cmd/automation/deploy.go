package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"credit-automation/internal/config"
)

func newDeployCommand(opts *rootOptions) *cobra.Command {
	var specPath string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Register the strategies and bundles of a spec file",
		Long: `Register every strategy of a YAML spec file, then every bundle.

Registration is append-only. Deploying the same file twice registers new ids.

Examples:
  automation deploy --spec configs/leverage.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(specPath)
			if err != nil {
				return err
			}
			dep, err := config.Deploy(cmd.Context(), opts.app.registry, opts.app.actions, f)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "KIND\tNAME\tID")
			fmt.Fprintln(w, "----\t----\t--")
			for _, name := range sortedKeys(dep.Strategies) {
				fmt.Fprintf(w, "strategy\t%s\t%d\n", name, dep.Strategies[name])
			}
			for _, name := range sortedKeys(dep.Bundles) {
				fmt.Fprintf(w, "bundle\t%s\t%d\n", name, dep.Bundles[name])
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&specPath, "spec", "", "strategy spec YAML file")
	_ = cmd.MarkFlagRequired("spec")
	return cmd
}

// sortedKeys orders names by id.
func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return m[keys[i]] < m[keys[j]] })
	return keys
}
