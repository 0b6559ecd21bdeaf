package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	postgresDSN   string
	clickhouseDSN string
	debug         bool

	app *app // opened in PersistentPreRunE
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "automation",
		Short: "Strategy, bundle and subscription management for position automation",
		Long: `Deploy strategies and bundles, manage subscriptions and inspect execution history.

Without --postgres-dsn all state lives in memory and is lost when the command exits.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			if opts.debug {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			opts.app, err = openApp(cmd.Context(), opts.postgresDSN, opts.clickhouseDSN, logger)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.app != nil {
				opts.app.close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.postgresDSN, "postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (default in-memory)")
	cmd.PersistentFlags().StringVar(&opts.clickhouseDSN, "clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the execution log")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "debug logging")

	cmd.AddCommand(newDeployCommand(opts))
	cmd.AddCommand(newStrategiesCommand(opts))
	cmd.AddCommand(newBundlesCommand(opts))
	cmd.AddCommand(newSubCommand(opts))
	cmd.AddCommand(newExecuteCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))

	return cmd
}
