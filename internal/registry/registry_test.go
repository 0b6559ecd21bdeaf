package registry

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-automation/internal/action"
	"credit-automation/internal/domain"
	"credit-automation/internal/protocol"
	"credit-automation/internal/recipe"
	"credit-automation/internal/storage/memory"
	"credit-automation/internal/trigger"
)

func newRegistry() *Registry {
	return New(Options{
		Strategies: memory.NewStrategyStore(),
		Bundles:    memory.NewBundleStore(),
		Actions:    protocol.NewRegistry(),
		Now:        func() int64 { return 42 },
	})
}

func boostSpec() StrategySpec {
	return StrategySpec{
		Name:  "boost",
		Calls: protocol.BoostCalls(),
		Triggers: []domain.Trigger{{
			Kind:           domain.TriggerRatioState,
			Operator:       domain.OperatorOver,
			ThresholdParam: domain.SlotUpperThreshold,
		}},
		Continuous: true,
	}
}

func TestRegisterStrategy_SequentialAndImmutable(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()

	id0, err := r.RegisterStrategy(ctx, boostSpec())
	require.NoError(t, err)
	id1, err := r.RegisterStrategy(ctx, boostSpec())
	require.NoError(t, err)
	assert.Equal(t, int64(0), id0)
	assert.Equal(t, int64(1), id1)

	s0, err := r.Strategy(ctx, id0)
	require.NoError(t, err)
	s1, err := r.Strategy(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, s0.Payload, s1.Payload, "same recipe encodes to same payload")
	assert.Equal(t, int64(42), s0.CreatedAt)
	assert.True(t, s0.Continuous)

	again, err := r.Strategy(ctx, id0)
	require.NoError(t, err)
	assert.Equal(t, s0, again)

	n, err := r.StrategyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRegisterStrategy_Rejections(t *testing.T) {
	ctx := context.Background()

	noTriggers := boostSpec()
	noTriggers.Triggers = nil

	badTrigger := boostSpec()
	badTrigger.Triggers = []domain.Trigger{{Kind: "VOLUME", Operator: domain.OperatorOver}}

	dangling := boostSpec()
	dangling.Calls = protocol.BoostCalls()
	dangling.Calls[1].Args[2] = domain.Ret(2)

	schema := boostSpec()
	schema.Calls = protocol.BoostCalls()
	schema.Calls[0].Args = schema.Calls[0].Args[:2]

	unknown := boostSpec()
	unknown.Calls = []domain.Call{{
		Action: domain.NewActionDescriptor("Teleport", domain.ParamNone),
	}}

	undeclared := boostSpec()
	undeclared.Calls = protocol.FlashBoostCalls()

	overclaimed := boostSpec()
	overclaimed.UsesFlashLoan = true

	tests := []struct {
		name string
		spec StrategySpec
		want error
	}{
		{"no triggers", noTriggers, ErrNoTriggers},
		{"invalid trigger", badTrigger, trigger.ErrInvalidTrigger},
		{"dangling reference", dangling, recipe.ErrDanglingReference},
		{"schema", schema, recipe.ErrSchema},
		{"unknown action", unknown, recipe.ErrUnknownAction},
		{"flash loan not declared", undeclared, ErrFlashLoanMismatch},
		{"flash loan declared but unused", overclaimed, ErrFlashLoanMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry()
			_, err := r.RegisterStrategy(ctx, tt.spec)
			require.ErrorIs(t, err, tt.want)

			n, err := r.StrategyCount(ctx)
			require.NoError(t, err)
			assert.Zero(t, n, "rejected strategy must not be stored")
		})
	}
}

func TestRegisterStrategy_WithoutActionTable(t *testing.T) {
	r := New(Options{Strategies: memory.NewStrategyStore(), Bundles: memory.NewBundleStore()})

	spec := boostSpec()
	spec.Calls = []domain.Call{{Action: domain.NewActionDescriptor("Teleport", domain.ParamNone)}}
	_, err := r.RegisterStrategy(context.Background(), spec)
	assert.NoError(t, err)
}

func TestRegisterBundle(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()

	_, err := r.RegisterBundle(ctx, nil)
	require.ErrorIs(t, err, ErrEmptyBundle)

	_, err = r.RegisterBundle(ctx, []int64{0})
	require.ErrorIs(t, err, ErrUnknownStrategy)

	s0, err := r.RegisterStrategy(ctx, boostSpec())
	require.NoError(t, err)
	flash := boostSpec()
	flash.Name = "flash-boost"
	flash.Calls = protocol.FlashBoostCalls()
	flash.UsesFlashLoan = true
	s1, err := r.RegisterStrategy(ctx, flash)
	require.NoError(t, err)

	_, err = r.RegisterBundle(ctx, []int64{s0, s1, 7})
	require.ErrorIs(t, err, ErrUnknownStrategy)

	ids := []int64{s0, s1}
	b, err := r.RegisterBundle(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b)
	ids[0] = 99

	got, err := r.Bundle(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []int64{s0, s1}, got.StrategyIDs)

	_, err = r.Bundle(ctx, 5)
	require.ErrorIs(t, err, ErrUnknownBundle)

	list, err := r.Bundles(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	strategies, err := r.Strategies(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.Equal(t, "flash-boost", strategies[0].Name)
}

func TestRegisterStrategy_FixedThreshold(t *testing.T) {
	spec := boostSpec()
	spec.Triggers = []domain.Trigger{
		{Kind: domain.TriggerGasPrice, Operator: domain.OperatorUnder, Threshold: decimal.NewFromInt(50)},
		{Kind: domain.TriggerRatioState, Operator: domain.OperatorOver, ThresholdParam: domain.SlotUpperThreshold},
	}
	r := newRegistry()
	id, err := r.RegisterStrategy(context.Background(), spec)
	require.NoError(t, err)

	s, err := r.Strategy(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, s.Triggers, 2)
	assert.True(t, s.Triggers[0].Threshold.Equal(decimal.NewFromInt(50)))
}

var _ recipe.Lookup = (*action.Registry)(nil)
