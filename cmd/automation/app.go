package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"credit-automation/internal/action"
	"credit-automation/internal/protocol"
	"credit-automation/internal/registry"
	"credit-automation/internal/storage"
	chstore "credit-automation/internal/storage/clickhouse"
	"credit-automation/internal/storage/memory"
	"credit-automation/internal/storage/migrations"
	pgstore "credit-automation/internal/storage/postgres"
	"credit-automation/internal/subscription"
)

// executionLog is what the executor writes and history reads.
type executionLog interface {
	storage.ExecutionLogStore
	storage.ExecutionStatsStore
}

// app holds the stores and services shared by commands.
type app struct {
	logger *zap.Logger

	strategies    storage.StrategyStore
	bundles       storage.BundleStore
	subscriptions storage.SubscriptionStore
	executions    executionLog

	actions  *action.Registry
	registry *registry.Registry
	manager  *subscription.Manager

	cleanup []func()
}

// openApp wires stores: PostgreSQL when postgresDSN is set, otherwise memory.
// With clickhouseDSN the execution log goes to ClickHouse.
func openApp(ctx context.Context, postgresDSN, clickhouseDSN string, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger, actions: protocol.NewRegistry()}
	a.cleanup = append(a.cleanup, func() { _ = logger.Sync() })

	if postgresDSN == "" {
		logger.Debug("using in-memory storage")
		log := memory.NewExecutionLogStore()
		a.strategies = memory.NewStrategyStore()
		a.bundles = memory.NewBundleStore()
		a.subscriptions = memory.NewSubscriptionStore()
		a.executions = log
	} else {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, err
		}
		a.cleanup = append(a.cleanup, pool.Close)
		if _, err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
			a.close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		a.strategies = pgstore.NewStrategyStore(pool)
		a.bundles = pgstore.NewBundleStore(pool)
		a.subscriptions = pgstore.NewSubscriptionStore(pool)
		a.executions = pgstore.NewExecutionLogStore(pool)
	}

	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		a.cleanup = append(a.cleanup, func() { conn.Close() })
		a.executions = chstore.NewExecutionLogStore(conn)
	}

	a.registry = registry.New(registry.Options{
		Strategies: a.strategies,
		Bundles:    a.bundles,
		Actions:    a.actions,
		Logger:     logger,
	})
	a.manager = subscription.NewManager(a.subscriptions, a.bundles, a.strategies, logger)
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}
