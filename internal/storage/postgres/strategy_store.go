package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"credit-automation/internal/domain"
	"credit-automation/internal/storage"
)

// StrategyStore implements storage.StrategyStore using PostgreSQL.
type StrategyStore struct {
	pool *Pool
}

// NewStrategyStore creates a new StrategyStore.
func NewStrategyStore(pool *Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StrategyStore = (*StrategyStore)(nil)

const strategyColumns = `id, name, payload, triggers, uses_flash_loan, continuous, created_at`

// Append stores a strategy under the next dense id.
// The table lock serializes concurrent appends so ids have no gaps.
func (s *StrategyStore) Append(ctx context.Context, st *domain.Strategy) (id int64, err error) {
	defer observe("strategies.append", time.Now(), &err)

	if st == nil || len(st.Payload) == 0 {
		return 0, storage.ErrInvalidInput
	}

	triggers, err := json.Marshal(st.Triggers)
	if err != nil {
		return 0, fmt.Errorf("marshal triggers: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id, err = nextDenseID(ctx, tx, "strategies")
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO strategies (` + strategyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.Exec(ctx, query,
		id, st.Name, []byte(st.Payload), triggers, st.UsesFlashLoan, st.Continuous, st.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, storage.ErrDuplicateKey
		}
		return 0, fmt.Errorf("insert strategy: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// GetByID retrieves a strategy. Returns ErrNotFound if not exists.
func (s *StrategyStore) GetByID(ctx context.Context, id int64) (*domain.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE id = $1`

	st, err := scanStrategy(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get strategy: %w", err)
	}
	return st, nil
}

// Count returns the number of stored strategies.
func (s *StrategyStore) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, s.pool, "strategies")
}

// List returns up to limit strategies starting at id offset. limit <= 0 means no limit.
func (s *StrategyStore) List(ctx context.Context, offset, limit int64) ([]*domain.Strategy, error) {
	if offset < 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + strategyColumns + `
		FROM strategies
		WHERE id >= $1
		ORDER BY id ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, offset, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()

	var result []*domain.Strategy
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan strategy row: %w", err)
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy rows: %w", err)
	}
	return result, nil
}

func scanStrategy(row pgx.Row) (*domain.Strategy, error) {
	var (
		st       domain.Strategy
		payload  []byte
		triggers []byte
	)
	err := row.Scan(&st.ID, &st.Name, &payload, &triggers, &st.UsesFlashLoan, &st.Continuous, &st.CreatedAt)
	if err != nil {
		return nil, err
	}
	st.Payload = domain.Payload(payload)
	if err := json.Unmarshal(triggers, &st.Triggers); err != nil {
		return nil, fmt.Errorf("unmarshal triggers of strategy %d: %w", st.ID, err)
	}
	return &st, nil
}

// nextDenseID locks table and returns MAX(id)+1, or 0 when empty.
// Table names are compile-time constants, never user input.
func nextDenseID(ctx context.Context, tx pgx.Tx, table string) (int64, error) {
	if _, err := tx.Exec(ctx, "LOCK TABLE "+table+" IN EXCLUSIVE MODE"); err != nil {
		return 0, fmt.Errorf("lock %s: %w", table, err)
	}
	var id int64
	if err := tx.QueryRow(ctx, "SELECT COALESCE(MAX(id) + 1, 0) FROM "+table).Scan(&id); err != nil {
		return 0, fmt.Errorf("next %s id: %w", table, err)
	}
	return id, nil
}

func countRows(ctx context.Context, pool *Pool, table string) (int64, error) {
	var n int64
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// sqlLimit maps a non-positive limit to NULL, which Postgres treats as LIMIT ALL.
func sqlLimit(limit int64) *int64 {
	if limit <= 0 {
		return nil
	}
	return &limit
}
