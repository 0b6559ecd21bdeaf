package domain

// Strategy is a registered recipe template bound to trigger conditions.
// Strategies are never mutated after registration.
type Strategy struct {
	ID            int64     // sequential, append-only
	Name          string    // human-readable label, not unique
	Payload       Payload   // encoded recipe template
	Triggers      []Trigger // all must fire
	UsesFlashLoan bool
	Continuous    bool  // false: subscription is deactivated after one successful execution
	CreatedAt     int64 // registration time (ms)
}

// Bundle is an ordered group of alternative strategies serving one intent.
// Index 0 is the direct variant; later indices are flash-loan-backed fallbacks.
type Bundle struct {
	ID          int64
	StrategyIDs []int64
	CreatedAt   int64 // registration time (ms)
}
