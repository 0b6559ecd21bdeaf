package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"credit-automation/internal/domain"
	"credit-automation/internal/storage"
)

// SubscriptionStore implements storage.SubscriptionStore using PostgreSQL.
type SubscriptionStore struct {
	pool *Pool
}

// NewSubscriptionStore creates a new SubscriptionStore.
func NewSubscriptionStore(pool *Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)

const subscriptionColumns = `
	id, owner, bundle_id,
	lower_threshold, upper_threshold, target_ratio,
	collateral_asset_id, debt_asset_id,
	active, created_at, updated_at`

// Insert stores a subscription and returns the sequence-assigned id.
// A bundle_id with no bundle row yields ErrInvalidInput.
func (s *SubscriptionStore) Insert(ctx context.Context, sub *domain.Subscription) (id int64, err error) {
	defer observe("subscriptions.insert", time.Now(), &err)

	if sub == nil {
		return 0, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO subscriptions (
			owner, bundle_id,
			lower_threshold, upper_threshold, target_ratio,
			collateral_asset_id, debt_asset_id,
			active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	p := sub.Params
	err = s.pool.QueryRow(ctx, query,
		sub.Owner.Bytes(), sub.BundleID,
		toNumeric(p.LowerThreshold), toNumeric(p.UpperThreshold), toNumeric(p.TargetRatio),
		uintToNumeric(p.CollateralAssetID), uintToNumeric(p.DebtAssetID),
		sub.Active, sub.CreatedAt, sub.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if isForeignKeyError(err) {
			return 0, fmt.Errorf("bundle %d: %w", sub.BundleID, storage.ErrInvalidInput)
		}
		return 0, fmt.Errorf("insert subscription: %w", err)
	}
	return id, nil
}

// GetByID retrieves a subscription. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) GetByID(ctx context.Context, id int64) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// UpdateParams replaces runtime params. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) UpdateParams(ctx context.Context, id int64, params domain.RuntimeParams, updatedAt int64) error {
	query := `
		UPDATE subscriptions SET
			lower_threshold = $2, upper_threshold = $3, target_ratio = $4,
			collateral_asset_id = $5, debt_asset_id = $6,
			updated_at = $7
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, id,
		toNumeric(params.LowerThreshold), toNumeric(params.UpperThreshold), toNumeric(params.TargetRatio),
		uintToNumeric(params.CollateralAssetID), uintToNumeric(params.DebtAssetID),
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("update subscription params: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetActive toggles the active flag. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) SetActive(ctx context.Context, id int64, active bool, updatedAt int64) error {
	query := `UPDATE subscriptions SET active = $2, updated_at = $3 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, active, updatedAt)
	if err != nil {
		return fmt.Errorf("set subscription active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a subscription. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListActive returns all active subscriptions ordered by id.
func (s *SubscriptionStore) ListActive(ctx context.Context) ([]*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE active ORDER BY id ASC`
	return s.query(ctx, query)
}

// ListByOwner returns all subscriptions of owner ordered by id.
func (s *SubscriptionStore) ListByOwner(ctx context.Context, owner common.Address) ([]*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE owner = $1 ORDER BY id ASC`
	return s.query(ctx, query, owner.Bytes())
}

func (s *SubscriptionStore) query(ctx context.Context, query string, args ...any) ([]*domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscription rows: %w", err)
	}
	return result, nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		sub                        domain.Subscription
		owner                      []byte
		lower, upper, target       pgtype.Numeric
		collateralAsset, debtAsset pgtype.Numeric
	)
	err := row.Scan(
		&sub.ID, &owner, &sub.BundleID,
		&lower, &upper, &target,
		&collateralAsset, &debtAsset,
		&sub.Active, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Owner = common.BytesToAddress(owner)
	sub.Params.LowerThreshold = fromNumeric(lower)
	sub.Params.UpperThreshold = fromNumeric(upper)
	sub.Params.TargetRatio = fromNumeric(target)
	if sub.Params.CollateralAssetID, err = numericToUint(collateralAsset); err != nil {
		return nil, fmt.Errorf("collateral_asset_id: %w", err)
	}
	if sub.Params.DebtAssetID, err = numericToUint(debtAsset); err != nil {
		return nil, fmt.Errorf("debt_asset_id: %w", err)
	}
	return &sub, nil
}
