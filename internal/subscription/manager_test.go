package subscription

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-automation/internal/domain"
	"credit-automation/internal/storage/memory"
	"credit-automation/internal/trigger"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func params(lower, upper, target string) domain.RuntimeParams {
	return domain.RuntimeParams{
		LowerThreshold:    d(lower),
		UpperThreshold:    d(upper),
		TargetRatio:       d(target),
		CollateralAssetID: 1,
		DebtAssetID:       2,
	}
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	ctx := context.Background()
	strategies := memory.NewStrategyStore()
	_, err := strategies.Append(ctx, &domain.Strategy{
		Name: "boost",
		Triggers: []domain.Trigger{{
			Kind:           domain.TriggerRatioState,
			Operator:       domain.OperatorOver,
			ThresholdParam: domain.SlotUpperThreshold,
		}},
	})
	require.NoError(t, err)
	_, err = strategies.Append(ctx, &domain.Strategy{
		Name: "close",
		Triggers: []domain.Trigger{{
			Kind:       domain.TriggerPrice,
			Operator:   domain.OperatorUnder,
			Threshold:  d("1000"),
			AssetParam: domain.SlotCollateralAssetID,
		}},
	})
	require.NoError(t, err)

	bundles := memory.NewBundleStore()
	_, err = bundles.Append(ctx, &domain.Bundle{StrategyIDs: []int64{0}})
	require.NoError(t, err)
	_, err = bundles.Append(ctx, &domain.Bundle{StrategyIDs: []int64{1}})
	require.NoError(t, err)

	m := NewManager(memory.NewSubscriptionStore(), bundles, strategies, nil)
	clock := int64(0)
	m.SetClock(func() int64 { clock++; return clock })
	return m
}

func TestActivate_UnboundTriggerParam(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	// The boost strategy reads upperThreshold.
	_, err := m.Activate(ctx, alice, 0, params("1.5", "0", "1.8"))
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.ErrorIs(t, err, trigger.ErrUnboundThreshold)

	// The close strategy reads collateralAssetId.
	p := params("0", "0", "0")
	p.CollateralAssetID = 0
	_, err = m.Activate(ctx, alice, 1, p)
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.ErrorIs(t, err, trigger.ErrUnboundAsset)

	id, err := m.Activate(ctx, alice, 0, params("1.5", "2.2", "1.8"))
	require.NoError(t, err)
	err = m.Update(ctx, alice, id, params("1.5", "0", "1.8"))
	assert.ErrorIs(t, err, ErrInvalidParams)

	sub, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, d("2.2").Equal(sub.Params.UpperThreshold))
}

func TestActivate(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	id, err := m.Activate(ctx, alice, 0, params("1.5", "2.2", "1.8"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)

	sub, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.Equal(t, alice, sub.Owner)
	assert.Equal(t, sub.CreatedAt, sub.UpdatedAt)

	_, err = m.Activate(ctx, alice, 3, params("1.5", "2.2", "1.8"))
	assert.ErrorIs(t, err, ErrUnknownBundle)

	_, err = m.Activate(ctx, alice, 0, params("2.2", "1.5", "0"))
	assert.ErrorIs(t, err, ErrInvalidParams)

	active, err := m.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1, "rejected activations must not be stored")
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name    string
		p       domain.RuntimeParams
		wantErr bool
	}{
		{"all set and ordered", params("1.5", "2.2", "1.8"), false},
		{"nothing set", domain.RuntimeParams{}, false},
		{"only upper", params("0", "2.2", "0"), false},
		{"target below upper only", params("0", "2.2", "1.8"), false},
		{"target above lower only", params("1.5", "0", "1.8"), false},
		{"negative lower", params("-1", "2.2", "0"), true},
		{"lower equals upper", params("2", "2", "0"), true},
		{"lower above upper", params("2.5", "2", "0"), true},
		{"target equals lower", params("1.5", "2.2", "1.5"), true},
		{"target equals upper", params("1.5", "2.2", "2.2"), true},
		{"target above upper", params("0", "2.2", "3"), true},
		{"negative target", params("0", "0", "-2"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.p)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParams)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdate_OwnershipBeforeValidation(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	id, err := m.Activate(ctx, alice, 0, params("1.5", "2.2", "1.8"))
	require.NoError(t, err)

	err = m.Update(ctx, bob, id, params("9", "1", "5"))
	assert.ErrorIs(t, err, ErrNotOwner, "ownership is checked before params")

	err = m.Update(ctx, alice, id, params("9", "1", "5"))
	assert.ErrorIs(t, err, ErrInvalidParams)

	err = m.Update(ctx, alice, 77, params("1.5", "2.2", "1.8"))
	assert.ErrorIs(t, err, ErrUnknownSubscription)

	require.NoError(t, m.Update(ctx, alice, id, params("1.4", "2.4", "2")))
	sub, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, sub.Params.TargetRatio.Equal(d("2")))
	assert.Equal(t, id, sub.ID, "update is in place")
	assert.Greater(t, sub.UpdatedAt, sub.CreatedAt)
}

func TestSetActive(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	id, err := m.Activate(ctx, alice, 0, params("1.5", "2.2", "1.8"))
	require.NoError(t, err)

	assert.ErrorIs(t, m.SetActive(ctx, bob, id, false), ErrNotOwner)
	assert.ErrorIs(t, m.SetActive(ctx, bob, id, true), ErrNotOwner, "not owner regardless of state")

	require.NoError(t, m.SetActive(ctx, alice, id, false))
	active, err := m.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, m.SetActive(ctx, alice, id, false), "idempotent")
	require.NoError(t, m.SetActive(ctx, alice, id, true))
	active, err = m.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRemoveAndDeactivate(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	a, err := m.Activate(ctx, alice, 0, params("1.5", "2.2", "1.8"))
	require.NoError(t, err)
	b, err := m.Activate(ctx, bob, 0, params("1.5", "2.2", "1.8"))
	require.NoError(t, err)

	assert.ErrorIs(t, m.Remove(ctx, bob, a), ErrNotOwner)
	require.NoError(t, m.Remove(ctx, alice, a))
	_, err = m.Get(ctx, a)
	assert.ErrorIs(t, err, ErrUnknownSubscription)
	assert.ErrorIs(t, m.Remove(ctx, alice, a), ErrUnknownSubscription)

	require.NoError(t, m.Deactivate(ctx, b))
	sub, err := m.Get(ctx, b)
	require.NoError(t, err)
	assert.False(t, sub.Active)

	owned, err := m.ListByOwner(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}
