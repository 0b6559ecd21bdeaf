package domain

import "github.com/shopspring/decimal"

// ExecutionStatus is the outcome of one execute attempt.
type ExecutionStatus string

// Execution status constants
const (
	ExecutionSuccess  ExecutionStatus = "SUCCESS"
	ExecutionRejected ExecutionStatus = "REJECTED"
)

// ExecutionRecord is the audit entry written for every execute attempt.
type ExecutionRecord struct {
	ExecutionID    string // deterministic hash
	SubscriptionID int64
	BundleID       int64
	StrategyID     int64 // -1 when lookup failed before a strategy was resolved
	StrategyIndex  int
	Status         ExecutionStatus
	ErrorKind      string          // sentinel error name, empty on success
	ErrorMessage   string          // full wrapped error, empty on success
	Reading        decimal.Decimal // first trigger reading observed inside the transaction
	PayloadDigest  string          // keccak256 of the executed payload
	Deactivated    bool            // subscription was auto-deactivated
	ExecutedAt     int64           // ms
}

// ExecutionStats counts execute attempts of one strategy.
type ExecutionStats struct {
	StrategyID  int64
	Attempts    int64
	Successes   int64
	Rejections  int64
	ByErrorKind map[string]int64 // rejections per error kind
	LastAt      int64            // ms, 0 when never attempted
}
