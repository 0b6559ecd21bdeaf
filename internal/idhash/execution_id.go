package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeExecutionID computes a deterministic execution_id using SHA256.
// Formula: SHA256(subscription_id|strategy_index|strategy_id|executed_at|attempt)
// Returns hex-encoded hash (64 characters).
func ComputeExecutionID(
	subscriptionID int64,
	strategyIndex int,
	strategyID int64,
	executedAt int64,
	attempt uint64,
) string {
	data := fmt.Sprintf("%d|%d|%d|%d|%d",
		subscriptionID,
		strategyIndex,
		strategyID,
		executedAt,
		attempt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
