// Package main runs the automation bot as a long-lived service:
// - Polling (scheduled): active subscriptions, trigger checks, execution
// - Feed (optional): HTTP reads and WebSocket pushes from the automation node
// - HTTP: /health, /metrics, /status
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"credit-automation/internal/action"
	"credit-automation/internal/bot"
	"credit-automation/internal/config"
	"credit-automation/internal/domain"
	"credit-automation/internal/executor"
	"credit-automation/internal/feed"
	"credit-automation/internal/ledger"
	"credit-automation/internal/observability"
	"credit-automation/internal/protocol"
	"credit-automation/internal/registry"
	"credit-automation/internal/simulation"
	"credit-automation/internal/storage"
	chstore "credit-automation/internal/storage/clickhouse"
	"credit-automation/internal/storage/memory"
	"credit-automation/internal/storage/migrations"
	pgstore "credit-automation/internal/storage/postgres"
	"credit-automation/internal/subscription"
	"credit-automation/internal/trigger"
)

// Server holds the components of the bot service.
type Server struct {
	agent    *bot.Agent
	interval time.Duration
	logger   *zap.Logger

	// State
	mu        sync.Mutex
	started   time.Time
	lastRound time.Time
	lastRunID string
	rounds    int
	executed  int
}

// stores holds all storage implementations.
type stores struct {
	strategies    storage.StrategyStore
	bundles       storage.BundleStore
	subscriptions storage.SubscriptionStore
	executions    storage.ExecutionLogStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("FEED_RPC_ENDPOINT"), "automation node HTTP endpoint (default: read the ledger directly)")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("FEED_WS_ENDPOINT"), "automation node WebSocket endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the execution log")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	ledgerPath := flag.String("ledger", "configs/ledger.yaml", "ledger snapshot the executor runs against")
	specPath := flag.String("spec", "", "strategy spec deployed on start when the registry is empty")
	pollInterval := flag.Duration("poll-interval", bot.DefaultPollInterval, "subscription polling interval")
	concurrency := flag.Int("concurrency", bot.DefaultMaxConcurrency, "subscriptions processed in parallel")
	cacheTTL := flag.Duration("cache-ttl", 5*time.Second, "lifetime of cached feed readings")
	slippageBps := flag.Int64("slippage-bps", 50, "swap slippage tolerance")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	debug := flag.Bool("debug", false, "debug logging")

	flag.Parse()

	// Setup logger
	zc := zap.NewProductionConfig()
	if *debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("bot")

	// Validate required flags
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if *wsEndpoint != "" && *rpcEndpoint == "" {
		logger.Fatal("--ws-endpoint requires --rpc-endpoint")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	st, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatal("failed to create stores", zap.Error(err))
	}
	defer cleanup()

	setup, err := simulation.LoadLedgerSetup(*ledgerPath)
	if err != nil {
		logger.Fatal("failed to load ledger", zap.Error(err))
	}
	l, err := simulation.BuildLedger(*setup)
	if err != nil {
		logger.Fatal("failed to build ledger", zap.Error(err))
	}

	actions := protocol.NewRegistry()
	reg := registry.New(registry.Options{
		Strategies: st.strategies,
		Bundles:    st.bundles,
		Actions:    actions,
		Logger:     logger,
	})
	if *specPath != "" {
		if err := deployIfEmpty(ctx, reg, actions, *specPath, logger); err != nil {
			logger.Fatal("failed to deploy spec", zap.Error(err))
		}
	}
	manager := subscription.NewManager(st.subscriptions, st.bundles, st.strategies, logger)

	reader, closeFeed, err := createReader(ctx, *rpcEndpoint, *wsEndpoint, *cacheTTL, l, manager, logger)
	if err != nil {
		logger.Fatal("failed to create feed", zap.Error(err))
	}
	defer closeFeed()

	exec := executor.New(executor.Options{
		Subscriptions: st.subscriptions,
		Bundles:       st.bundles,
		Strategies:    st.strategies,
		Ledger:        l,
		Actions:       actions,
		Log:           st.executions,
		Logger:        logger,
	})

	server := &Server{
		agent: bot.New(bot.Options{
			Subscriptions:  manager,
			Registry:       reg,
			Executor:       exec,
			Reader:         reader,
			Planner:        bot.NewTargetRatioPlanner(l, setup.SwapFeeBps, *slippageBps),
			PollInterval:   *pollInterval,
			MaxConcurrency: *concurrency,
			Logger:         logger,
		}),
		interval: *pollInterval,
		logger:   logger,
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	// Start HTTP server
	httpServer := server.startHTTPServer(*metricsAddr)

	server.Run(ctx)
	close(done)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

// createStores wires PostgreSQL (or memory) and, optionally, the ClickHouse execution log.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *zap.Logger) (*stores, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	st := &stores{}
	if useMemory {
		st.strategies = memory.NewStrategyStore()
		st.bundles = memory.NewBundleStore()
		st.subscriptions = memory.NewSubscriptionStore()
		st.executions = memory.NewExecutionLogStore()
	} else {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		if _, err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		st.strategies = pgstore.NewStrategyStore(pool)
		st.bundles = pgstore.NewBundleStore(pool)
		st.subscriptions = pgstore.NewSubscriptionStore(pool)
		st.executions = pgstore.NewExecutionLogStore(pool)
	}

	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		st.executions = chstore.NewExecutionLogStore(conn)
	}

	return st, cleanup, nil
}

// deployIfEmpty registers the spec file unless strategies already exist.
func deployIfEmpty(ctx context.Context, reg *registry.Registry, actions *action.Registry, path string, logger *zap.Logger) error {
	n, err := reg.StrategyCount(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("registry not empty, skipping deploy", zap.Int64("strategies", n))
		return nil
	}
	f, err := config.Load(path)
	if err != nil {
		return err
	}
	dep, err := config.Deploy(ctx, reg, actions, f)
	if err != nil {
		return err
	}
	logger.Info("deployed spec",
		zap.String("path", path),
		zap.Int("strategies", len(dep.Strategies)),
		zap.Int("bundles", len(dep.Bundles)),
	)
	return nil
}

// createReader picks the trigger source. Without an RPC endpoint the bot reads
// the ledger directly. With a WebSocket endpoint pushed readings refresh the cache.
func createReader(ctx context.Context, rpcEndpoint, wsEndpoint string, ttl time.Duration, l *ledger.Ledger, manager *subscription.Manager, logger *zap.Logger) (trigger.Reader, func(), error) {
	if rpcEndpoint == "" {
		logger.Info("reading triggers from the ledger")
		return trigger.FromState(l), func() {}, nil
	}

	cache := feed.NewCachingReader(feed.ReadThrough(feed.NewHTTPClient(rpcEndpoint)), ttl)
	if wsEndpoint == "" {
		return cache, func() {}, nil
	}

	ws, err := feed.NewWSClient(ctx, wsEndpoint, nil, logger)
	if err != nil {
		return nil, nil, err
	}

	filters := []feed.ReadingFilter{{Kind: domain.TriggerGasPrice}, {Kind: domain.TriggerTimestamp}}
	subs, err := manager.ListActive(ctx)
	if err != nil {
		_ = ws.Close()
		return nil, nil, err
	}
	seen := make(map[feed.ReadingFilter]bool)
	for _, s := range subs {
		for _, f := range []feed.ReadingFilter{
			{Kind: domain.TriggerRatioState, Subject: trigger.Subject{Owner: s.Owner}},
			{Kind: domain.TriggerPrice, Subject: trigger.Subject{Asset: s.Params.CollateralAssetID}},
			{Kind: domain.TriggerPrice, Subject: trigger.Subject{Asset: s.Params.DebtAssetID}},
		} {
			if !seen[f] {
				seen[f] = true
				filters = append(filters, f)
			}
		}
	}

	for _, f := range filters {
		ch, err := ws.SubscribeReadings(ctx, f)
		if err != nil {
			_ = ws.Close()
			return nil, nil, fmt.Errorf("subscribe %s: %w", f.Kind, err)
		}
		go cache.Pump(ctx, ch)
	}
	logger.Info("streaming readings", zap.Int("subscriptions", len(filters)))

	return cache, func() { _ = ws.Close() }, nil
}

// Run polls until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		report, err := s.agent.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("poll round failed", zap.Error(err))
		}
		if report != nil {
			s.mu.Lock()
			s.lastRound = time.Now()
			s.lastRunID = report.RunID
			s.rounds++
			s.executed += report.Executed
			s.mu.Unlock()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (s *Server) startHTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return srv
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	Started   time.Time `json:"started"`
	LastRound time.Time `json:"last_round"`
	LastRunID string    `json:"last_run_id"`
	Rounds    int       `json:"rounds"`
	Executed  int       `json:"executed"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(s.started).String(),
		Started:   s.started,
		LastRound: s.lastRound,
		LastRunID: s.lastRunID,
		Rounds:    s.rounds,
		Executed:  s.executed,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, strings.TrimSpace(value))
		}
	}
}
