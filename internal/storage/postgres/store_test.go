package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-automation/internal/domain"
	"credit-automation/internal/storage"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestPostgresStores(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	t.Run("StrategyAppendAndGet", func(t *testing.T) {
		resetTables(t, pool)
		testStrategyAppendAndGet(t, pool)
	})
	t.Run("StrategyConcurrentAppend", func(t *testing.T) {
		resetTables(t, pool)
		testStrategyConcurrentAppend(t, pool)
	})
	t.Run("BundleAppendAndList", func(t *testing.T) {
		resetTables(t, pool)
		testBundleAppendAndList(t, pool)
	})
	t.Run("SubscriptionLifecycle", func(t *testing.T) {
		resetTables(t, pool)
		testSubscriptionLifecycle(t, pool)
	})
	t.Run("ExecutionLog", func(t *testing.T) {
		resetTables(t, pool)
		testExecutionLog(t, pool)
	})
}

func testStrategyAppendAndGet(t *testing.T, pool *Pool) {
	ctx := context.Background()
	store := NewStrategyStore(pool)

	in := &domain.Strategy{
		Name:    "repay",
		Payload: domain.Payload{'R', 'C', 'P', '1', 0x05, 0xff},
		Triggers: []domain.Trigger{{
			Kind:           domain.TriggerRatioState,
			Operator:       domain.OperatorUnder,
			ThresholdParam: domain.SlotLowerThreshold,
		}, {
			Kind:      domain.TriggerGasPrice,
			Operator:  domain.OperatorUnder,
			Threshold: decimal.RequireFromString("40.5"),
		}},
		UsesFlashLoan: true,
		CreatedAt:     1700000000000,
	}

	id0, err := store.Append(ctx, in)
	require.NoError(t, err)
	id1, err := store.Append(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(0), id0)
	assert.Equal(t, int64(1), id1)

	got, err := store.GetByID(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "repay", got.Name)
	assert.Equal(t, in.Payload, got.Payload)
	require.Len(t, got.Triggers, 2)
	assert.Equal(t, domain.SlotLowerThreshold, got.Triggers[0].ThresholdParam)
	assert.True(t, got.Triggers[1].Threshold.Equal(decimal.RequireFromString("40.5")))
	assert.True(t, got.UsesFlashLoan)
	assert.False(t, got.Continuous)

	_, err = store.GetByID(ctx, 7)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	page, err := store.List(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(1), page[0].ID)
}

func testStrategyConcurrentAppend(t *testing.T, pool *Pool) {
	ctx := context.Background()
	store := NewStrategyStore(pool)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, &domain.Strategy{Name: "c", Payload: domain.Payload("RCP1")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := store.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, n)
	for i, st := range all {
		assert.Equal(t, int64(i), st.ID, "ids must be dense")
	}
}

func testBundleAppendAndList(t *testing.T, pool *Pool) {
	ctx := context.Background()
	store := NewBundleStore(pool)

	_, err := store.Append(ctx, &domain.Bundle{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	id, err := store.Append(ctx, &domain.Bundle{StrategyIDs: []int64{3, 1, 2}, CreatedAt: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)

	got, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, got.StrategyIDs)

	_, err = store.Append(ctx, &domain.Bundle{StrategyIDs: []int64{0}, CreatedAt: 11})
	require.NoError(t, err)

	list, err := store.List(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(0), list[0].ID)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testSubscriptionLifecycle(t *testing.T, pool *Pool) {
	ctx := context.Background()
	bundles := NewBundleStore(pool)
	store := NewSubscriptionStore(pool)

	_, err := store.Insert(ctx, &domain.Subscription{Owner: alice, BundleID: 9})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	bundleID, err := bundles.Append(ctx, &domain.Bundle{StrategyIDs: []int64{0}})
	require.NoError(t, err)

	params := domain.RuntimeParams{
		LowerThreshold:    decimal.RequireFromString("1.5"),
		UpperThreshold:    decimal.RequireFromString("2.2"),
		TargetRatio:       decimal.RequireFromString("1.8"),
		CollateralAssetID: 1<<63 + 5,
		DebtAssetID:       2,
	}
	a, err := store.Insert(ctx, &domain.Subscription{
		Owner: alice, BundleID: bundleID, Params: params, Active: true, CreatedAt: 1, UpdatedAt: 1,
	})
	require.NoError(t, err)
	b, err := store.Insert(ctx, &domain.Subscription{
		Owner: bob, BundleID: bundleID, Active: true, CreatedAt: 2, UpdatedAt: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), a)
	assert.Equal(t, int64(1), b)

	got, err := store.GetByID(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, alice, got.Owner)
	assert.True(t, got.Params.TargetRatio.Equal(params.TargetRatio))
	assert.Equal(t, params.CollateralAssetID, got.Params.CollateralAssetID)

	params.TargetRatio = decimal.RequireFromString("1.9")
	require.NoError(t, store.UpdateParams(ctx, a, params, 5))
	got, err = store.GetByID(ctx, a)
	require.NoError(t, err)
	assert.True(t, got.Params.TargetRatio.Equal(decimal.RequireFromString("1.9")))
	assert.Equal(t, int64(5), got.UpdatedAt)

	require.NoError(t, store.SetActive(ctx, b, false, 6))
	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a, active[0].ID)

	owned, err := store.ListByOwner(ctx, bob)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.False(t, owned[0].Active)

	require.NoError(t, store.Delete(ctx, a))
	assert.ErrorIs(t, store.Delete(ctx, a), storage.ErrNotFound)
	assert.ErrorIs(t, store.UpdateParams(ctx, a, params, 7), storage.ErrNotFound)
	_, err = store.GetByID(ctx, a)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	c, err := store.Insert(ctx, &domain.Subscription{Owner: alice, BundleID: bundleID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), c, "deleted ids are not reused")
}

func testExecutionLog(t *testing.T, pool *Pool) {
	ctx := context.Background()
	store := NewExecutionLogStore(pool)

	records := []*domain.ExecutionRecord{
		{ExecutionID: "b", SubscriptionID: 1, StrategyID: 0, Status: domain.ExecutionSuccess,
			Reading: decimal.RequireFromString("1.33333"), PayloadDigest: "0xab", Deactivated: true, ExecutedAt: 200},
		{ExecutionID: "a", SubscriptionID: 1, StrategyID: 1, StrategyIndex: 1, Status: domain.ExecutionRejected,
			ErrorKind: "ExecutionFailed", ErrorMessage: "Sell: slippage", ExecutedAt: 100},
		{ExecutionID: "c", SubscriptionID: 2, StrategyID: -1, Status: domain.ExecutionRejected,
			ErrorKind: "IndexOutOfRange", ExecutedAt: 150},
	}
	for _, r := range records {
		require.NoError(t, store.Insert(ctx, r))
	}
	assert.ErrorIs(t, store.Insert(ctx, records[0]), storage.ErrDuplicateKey)

	bySub, err := store.GetBySubscription(ctx, 1)
	require.NoError(t, err)
	require.Len(t, bySub, 2)
	assert.Equal(t, "a", bySub[0].ExecutionID)
	assert.Equal(t, "b", bySub[1].ExecutionID)
	assert.True(t, bySub[1].Reading.Equal(decimal.RequireFromString("1.33333")))
	assert.True(t, bySub[1].Deactivated)
	assert.Equal(t, domain.ExecutionRejected, bySub[0].Status)
	assert.Equal(t, 1, bySub[0].StrategyIndex)

	byStrategy, err := store.GetByStrategy(ctx, -1)
	require.NoError(t, err)
	require.Len(t, byStrategy, 1)
	assert.Equal(t, "IndexOutOfRange", byStrategy[0].ErrorKind)

	stats, err := store.StrategyStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Attempts)
	assert.Equal(t, int64(1), stats.Rejections)
	assert.Equal(t, map[string]int64{"ExecutionFailed": 1}, stats.ByErrorKind)
	assert.Equal(t, int64(100), stats.LastAt)

	empty, err := store.StrategyStats(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, empty.Attempts)
	assert.Zero(t, empty.LastAt)
}
