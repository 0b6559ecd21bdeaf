package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"credit-automation/internal/domain"
	"credit-automation/internal/storage"
)

// BundleStore implements storage.BundleStore using PostgreSQL.
type BundleStore struct {
	pool *Pool
}

// NewBundleStore creates a new BundleStore.
func NewBundleStore(pool *Pool) *BundleStore {
	return &BundleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BundleStore = (*BundleStore)(nil)

// Append stores a bundle under the next dense id.
func (s *BundleStore) Append(ctx context.Context, b *domain.Bundle) (id int64, err error) {
	defer observe("bundles.append", time.Now(), &err)

	if b == nil || len(b.StrategyIDs) == 0 {
		return 0, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id, err = nextDenseID(ctx, tx, "bundles")
	if err != nil {
		return 0, err
	}

	query := `INSERT INTO bundles (id, strategy_ids, created_at) VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, query, id, b.StrategyIDs, b.CreatedAt); err != nil {
		if isDuplicateKeyError(err) {
			return 0, storage.ErrDuplicateKey
		}
		return 0, fmt.Errorf("insert bundle: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// GetByID retrieves a bundle. Returns ErrNotFound if not exists.
func (s *BundleStore) GetByID(ctx context.Context, id int64) (*domain.Bundle, error) {
	query := `SELECT id, strategy_ids, created_at FROM bundles WHERE id = $1`

	b, err := scanBundle(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	return b, nil
}

// Count returns the number of stored bundles.
func (s *BundleStore) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, s.pool, "bundles")
}

// List returns up to limit bundles starting at id offset. limit <= 0 means no limit.
func (s *BundleStore) List(ctx context.Context, offset, limit int64) ([]*domain.Bundle, error) {
	if offset < 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT id, strategy_ids, created_at
		FROM bundles
		WHERE id >= $1
		ORDER BY id ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, offset, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	var result []*domain.Bundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bundle row: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bundle rows: %w", err)
	}
	return result, nil
}

func scanBundle(row pgx.Row) (*domain.Bundle, error) {
	var b domain.Bundle
	if err := row.Scan(&b.ID, &b.StrategyIDs, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}
