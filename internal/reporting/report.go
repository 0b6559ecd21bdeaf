package reporting

import "time"

// Report summarizes registered strategies and their execution history.
type Report struct {
	GeneratedAt   time.Time
	StrategyCount int64
	BundleCount   int64

	// Strategies, sorted by strategy id
	Strategies []StrategyRow

	// Executions of the requested subscription, oldest first; empty when none was requested
	SubscriptionID int64
	Executions     []ExecutionRow
}

// StrategyRow is one strategy with its execution statistics.
type StrategyRow struct {
	StrategyID    int64
	Name          string
	UsesFlashLoan bool
	Continuous    bool
	Attempts      int64
	Successes     int64
	Rejections    int64
	SuccessRate   float64 // 0 when never attempted
	TopErrorKind  string  // most frequent rejection kind, ties broken by name
	LastAt        int64   // ms
}

// ExecutionRow is one audit record.
type ExecutionRow struct {
	ExecutionID   string
	StrategyID    int64
	StrategyIndex int
	Status        string
	ErrorKind     string
	Reading       string
	Deactivated   bool
	ExecutedAt    int64 // ms
}
