package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"credit-automation/internal/domain"
	"credit-automation/internal/storage"
)

// ExecutionLogStore implements storage.ExecutionLogStore using PostgreSQL.
type ExecutionLogStore struct {
	pool *Pool
}

// NewExecutionLogStore creates a new ExecutionLogStore.
func NewExecutionLogStore(pool *Pool) *ExecutionLogStore {
	return &ExecutionLogStore{pool: pool}
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
func (s *ExecutionLogStore) Insert(ctx context.Context, r *domain.ExecutionRecord) (err error) {
	defer observe("executions.insert", time.Now(), &err)

	if r == nil || r.ExecutionID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.pool.Exec(ctx, query,
		r.ExecutionID, r.SubscriptionID, r.BundleID, r.StrategyID, r.StrategyIndex,
		string(r.Status), r.ErrorKind, r.ErrorMessage, toNumeric(r.Reading), r.PayloadDigest,
		r.Deactivated, r.ExecutedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert execution record: %w", err)
	}
	return nil
}

// GetBySubscription returns records of a subscription ordered by executed_at ASC.
func (s *ExecutionLogStore) GetBySubscription(ctx context.Context, subscriptionID int64) ([]*domain.ExecutionRecord, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE subscription_id = $1
		ORDER BY executed_at ASC, execution_id ASC
	`
	return s.query(ctx, query, subscriptionID)
}

// GetByStrategy returns records of a strategy ordered by executed_at ASC.
func (s *ExecutionLogStore) GetByStrategy(ctx context.Context, strategyID int64) ([]*domain.ExecutionRecord, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE strategy_id = $1
		ORDER BY executed_at ASC, execution_id ASC
	`
	return s.query(ctx, query, strategyID)
}

// StrategyStats aggregates the records of one strategy.
func (s *ExecutionLogStore) StrategyStats(ctx context.Context, strategyID int64) (stats *domain.ExecutionStats, err error) {
	defer observe("executions.stats", time.Now(), &err)

	stats = &domain.ExecutionStats{
		StrategyID:  strategyID,
		ByErrorKind: make(map[string]int64),
	}
	err = s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = $2),
		       COALESCE(max(executed_at), 0)
		FROM executions
		WHERE strategy_id = $1
	`, strategyID, string(domain.ExecutionSuccess)).Scan(&stats.Attempts, &stats.Successes, &stats.LastAt)
	if err != nil {
		return nil, fmt.Errorf("query strategy stats: %w", err)
	}
	stats.Rejections = stats.Attempts - stats.Successes

	rows, err := s.pool.Query(ctx, `
		SELECT error_kind, count(*)
		FROM executions
		WHERE strategy_id = $1 AND status <> $2
		GROUP BY error_kind
	`, strategyID, string(domain.ExecutionSuccess))
	if err != nil {
		return nil, fmt.Errorf("query strategy error kinds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan error kind row: %w", err)
		}
		stats.ByErrorKind[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error kind rows: %w", err)
	}
	return stats, nil
}

func (s *ExecutionLogStore) query(ctx context.Context, query string, args ...any) ([]*domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query execution records: %w", err)
	}
	defer rows.Close()

	return scanExecutionRecords(rows)
}

// scanExecutionRecords scans multiple rows into a slice of ExecutionRecord.
func scanExecutionRecords(rows pgx.Rows) ([]*domain.ExecutionRecord, error) {
	var result []*domain.ExecutionRecord

	for rows.Next() {
		var (
			r       domain.ExecutionRecord
			status  string
			reading pgtype.Numeric
		)
		err := rows.Scan(
			&r.ExecutionID, &r.SubscriptionID, &r.BundleID, &r.StrategyID, &r.StrategyIndex,
			&status, &r.ErrorKind, &r.ErrorMessage, &reading, &r.PayloadDigest,
			&r.Deactivated, &r.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution record row: %w", err)
		}
		r.Status = domain.ExecutionStatus(status)
		r.Reading = fromNumeric(reading)
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution record rows: %w", err)
	}

	return result, nil
}
