package reporting

import (
	"context"
	"sort"
	"time"

	"credit-automation/internal/domain"
	"credit-automation/internal/storage"
)

// Catalog lists registered strategies. *registry.Registry satisfies it.
type Catalog interface {
	StrategyCount(ctx context.Context) (int64, error)
	BundleCount(ctx context.Context) (int64, error)
	Strategies(ctx context.Context, offset, limit int64) ([]*domain.Strategy, error)
}

// Generator produces reports from the registry and the execution log.
type Generator struct {
	catalog Catalog
	stats   storage.ExecutionStatsStore
	log     storage.ExecutionLogStore
	now     func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(catalog Catalog, stats storage.ExecutionStatsStore, log storage.ExecutionLogStore) *Generator {
	return &Generator{
		catalog: catalog,
		stats:   stats,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a report over all strategies. A subscriptionID >= 0 also
// includes that subscription's executions.
func (g *Generator) Generate(ctx context.Context, subscriptionID int64) (*Report, error) {
	strategyCount, err := g.catalog.StrategyCount(ctx)
	if err != nil {
		return nil, err
	}
	bundleCount, err := g.catalog.BundleCount(ctx)
	if err != nil {
		return nil, err
	}
	strategies, err := g.catalog.Strategies(ctx, 0, 0)
	if err != nil {
		return nil, err
	}

	rows := make([]StrategyRow, 0, len(strategies))
	for _, s := range strategies {
		st, err := g.stats.StrategyStats(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, strategyRow(s, st))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StrategyID < rows[j].StrategyID })

	report := &Report{
		GeneratedAt:    g.now(),
		StrategyCount:  strategyCount,
		BundleCount:    bundleCount,
		Strategies:     rows,
		SubscriptionID: subscriptionID,
	}

	if subscriptionID >= 0 {
		records, err := g.log.GetBySubscription(ctx, subscriptionID)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			report.Executions = append(report.Executions, executionRow(r))
		}
	}
	return report, nil
}

func strategyRow(s *domain.Strategy, st *domain.ExecutionStats) StrategyRow {
	row := StrategyRow{
		StrategyID:    s.ID,
		Name:          s.Name,
		UsesFlashLoan: s.UsesFlashLoan,
		Continuous:    s.Continuous,
	}
	if st == nil {
		return row
	}
	row.Attempts = st.Attempts
	row.Successes = st.Successes
	row.Rejections = st.Rejections
	row.LastAt = st.LastAt
	if st.Attempts > 0 {
		row.SuccessRate = float64(st.Successes) / float64(st.Attempts)
	}
	row.TopErrorKind = topKind(st.ByErrorKind)
	return row
}

func topKind(byKind map[string]int64) string {
	var (
		best  string
		count int64
	)
	for kind, n := range byKind {
		if n > count || (n == count && kind < best) {
			best, count = kind, n
		}
	}
	return best
}

func executionRow(r *domain.ExecutionRecord) ExecutionRow {
	return ExecutionRow{
		ExecutionID:   r.ExecutionID,
		StrategyID:    r.StrategyID,
		StrategyIndex: r.StrategyIndex,
		Status:        string(r.Status),
		ErrorKind:     r.ErrorKind,
		Reading:       r.Reading.String(),
		Deactivated:   r.Deactivated,
		ExecutedAt:    r.ExecutedAt,
	}
}
