package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"credit-automation/internal/domain"
	"credit-automation/internal/storage"
)

// ExecutionLogStore implements storage.ExecutionLogStore and
// storage.ExecutionStatsStore using ClickHouse.
type ExecutionLogStore struct {
	conn *Conn
}

// NewExecutionLogStore creates a new ExecutionLogStore.
func NewExecutionLogStore(conn *Conn) *ExecutionLogStore {
	return &ExecutionLogStore{conn: conn}
}

// Compile-time interface checks.
var (
	_ storage.ExecutionLogStore   = (*ExecutionLogStore)(nil)
	_ storage.ExecutionStatsStore = (*ExecutionLogStore)(nil)
)

const executionColumns = `
	execution_id, subscription_id, bundle_id, strategy_id, strategy_index,
	status, error_kind, error_message, reading, payload_digest,
	deactivated, executed_at`

// Insert adds a record. Returns ErrDuplicateKey if execution_id exists.
func (s *ExecutionLogStore) Insert(ctx context.Context, r *domain.ExecutionRecord) error {
	if r == nil || r.ExecutionID == "" {
		return storage.ErrInvalidInput
	}

	// ReplacingMergeTree would silently replace, the log is append-only.
	exists, err := s.exists(ctx, r.ExecutionID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO executions (`+executionColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	var deactivated uint8
	if r.Deactivated {
		deactivated = 1
	}
	err = batch.Append(
		r.ExecutionID, r.SubscriptionID, r.BundleID, r.StrategyID, int32(r.StrategyIndex),
		string(r.Status), r.ErrorKind, r.ErrorMessage, r.Reading, r.PayloadDigest,
		deactivated, r.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert execution record: %w", err)
	}
	return nil
}

// GetBySubscription returns records of a subscription ordered by executed_at ASC.
func (s *ExecutionLogStore) GetBySubscription(ctx context.Context, subscriptionID int64) ([]*domain.ExecutionRecord, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions FINAL
		WHERE subscription_id = ?
		ORDER BY executed_at ASC, execution_id ASC
	`
	rows, err := s.conn.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("query by subscription: %w", err)
	}
	defer rows.Close()

	return scanExecutionRecords(rows)
}

// GetByStrategy returns records of a strategy ordered by executed_at ASC.
func (s *ExecutionLogStore) GetByStrategy(ctx context.Context, strategyID int64) ([]*domain.ExecutionRecord, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions FINAL
		WHERE strategy_id = ?
		ORDER BY executed_at ASC, execution_id ASC
	`
	rows, err := s.conn.Query(ctx, query, strategyID)
	if err != nil {
		return nil, fmt.Errorf("query by strategy: %w", err)
	}
	defer rows.Close()

	return scanExecutionRecords(rows)
}

// StrategyStats aggregates the records of one strategy.
func (s *ExecutionLogStore) StrategyStats(ctx context.Context, strategyID int64) (*domain.ExecutionStats, error) {
	stats := &domain.ExecutionStats{
		StrategyID:  strategyID,
		ByErrorKind: make(map[string]int64),
	}

	totals := `
		SELECT
			count()                          AS attempts,
			countIf(status = 'SUCCESS')      AS successes,
			countIf(status != 'SUCCESS')     AS rejections,
			max(executed_at)                 AS last_at
		FROM executions FINAL
		WHERE strategy_id = ?
	`
	var attempts, successes, rejections uint64
	err := s.conn.QueryRow(ctx, totals, strategyID).Scan(&attempts, &successes, &rejections, &stats.LastAt)
	if err != nil {
		return nil, fmt.Errorf("query strategy totals: %w", err)
	}
	stats.Attempts = int64(attempts)
	stats.Successes = int64(successes)
	stats.Rejections = int64(rejections)

	byKind := `
		SELECT error_kind, count()
		FROM executions FINAL
		WHERE strategy_id = ? AND status != 'SUCCESS'
		GROUP BY error_kind
	`
	rows, err := s.conn.Query(ctx, byKind, strategyID)
	if err != nil {
		return nil, fmt.Errorf("query strategy error kinds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind string
			n    uint64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan error kind row: %w", err)
		}
		stats.ByErrorKind[kind] = int64(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error kind rows: %w", err)
	}

	return stats, nil
}

func (s *ExecutionLogStore) exists(ctx context.Context, executionID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count() FROM executions WHERE execution_id = ?`, executionID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanExecutionRecords(rows driver.Rows) ([]*domain.ExecutionRecord, error) {
	var result []*domain.ExecutionRecord

	for rows.Next() {
		var (
			r           domain.ExecutionRecord
			index       int32
			status      string
			deactivated uint8
		)
		err := rows.Scan(
			&r.ExecutionID, &r.SubscriptionID, &r.BundleID, &r.StrategyID, &index,
			&status, &r.ErrorKind, &r.ErrorMessage, &r.Reading, &r.PayloadDigest,
			&deactivated, &r.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution record row: %w", err)
		}
		r.StrategyIndex = int(index)
		r.Status = domain.ExecutionStatus(status)
		r.Deactivated = deactivated == 1
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution record rows: %w", err)
	}

	return result, nil
}
