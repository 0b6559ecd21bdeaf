package config

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-automation/internal/domain"
	"credit-automation/internal/protocol"
	"credit-automation/internal/recipe"
	"credit-automation/internal/registry"
	"credit-automation/internal/storage/memory"
)

func projectRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..")
}

func newRegistry() *registry.Registry {
	return registry.New(registry.Options{
		Strategies: memory.NewStrategyStore(),
		Bundles:    memory.NewBundleStore(),
		Actions:    protocol.NewRegistry(),
	})
}

func TestDeploy_LeverageBundles(t *testing.T) {
	f, err := Load(filepath.Join(projectRoot(t), "configs", "leverage.yaml"))
	require.NoError(t, err)

	ctx := context.Background()
	reg := newRegistry()
	dep, err := Deploy(ctx, reg, protocol.NewRegistry(), f)
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"boost": 0, "flash-boost": 1, "repay": 2, "flash-repay": 3, "close": 4}, dep.Strategies)
	assert.Equal(t, map[string]int64{"boost": 0, "repay": 1, "close": 2}, dep.Bundles)

	b, err := reg.Bundle(ctx, dep.Bundles["repay"])
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, b.StrategyIDs)

	s, err := reg.Strategy(ctx, dep.Strategies["flash-boost"])
	require.NoError(t, err)
	assert.True(t, s.UsesFlashLoan)
	assert.True(t, s.Continuous)
	require.Len(t, s.Triggers, 1)
	assert.Equal(t, domain.OperatorOver, s.Triggers[0].Operator)

	s, err = reg.Strategy(ctx, dep.Strategies["close"])
	require.NoError(t, err)
	assert.False(t, s.Continuous)
	assert.True(t, s.UsesFlashLoan)
	require.Len(t, s.Triggers, 1)
	assert.Equal(t, domain.TriggerPrice, s.Triggers[0].Kind)
	assert.Equal(t, domain.SlotCollateralAssetID, s.Triggers[0].AssetParam)
}

func TestBuild_ExplicitCallsMatchTemplate(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "explicit.yaml"))
	require.NoError(t, err)

	specs, err := f.Build(protocol.NewRegistry())
	require.NoError(t, err)
	require.Len(t, specs, 1)

	spec := specs[0]
	assert.False(t, spec.Continuous)
	if diff := cmp.Diff(protocol.BoostCalls(), spec.Calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, spec.Triggers, 2)
	assert.Equal(t, domain.TriggerGasPrice, spec.Triggers[1].Kind)
	assert.Equal(t, "150", spec.Triggers[1].Threshold.String())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "strategies: []\n"},
		{"unknown field", "strategies:\n  - name: a\n    template: boost\n    colour: red\n"},
		{"missing name", "strategies:\n  - template: boost\n"},
		{"duplicate name", "strategies:\n  - name: a\n    template: boost\n  - name: a\n    template: repay\n"},
		{"template and calls", "strategies:\n  - name: a\n    template: boost\n    calls:\n      - action: Borrow\n"},
		{"neither template nor calls", "strategies:\n  - name: a\n"},
		{"unknown template", "strategies:\n  - name: a\n    template: moon\n"},
		{"bundle of unknown strategy", "strategies:\n  - name: a\n    template: boost\nbundles:\n  - name: b\n    strategies: [z]\n"},
		{"empty bundle", "strategies:\n  - name: a\n    template: boost\nbundles:\n  - name: b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidSpec)
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  StrategyDef
		want error
	}{
		{
			name: "unknown action",
			def:  StrategyDef{Name: "x", Calls: []CallDef{{Action: "Teleport"}}},
			want: recipe.ErrUnknownAction,
		},
		{
			name: "bad literal",
			def: StrategyDef{Name: "x", Calls: []CallDef{{
				Action: "RatioCheck", Args: []string{"&owner", "minus one", "&targetRatio"},
			}}},
			want: recipe.ErrSchema,
		},
		{
			name: "bad trigger operator",
			def: StrategyDef{Name: "x", Template: "boost", Triggers: []TriggerDef{{
				Kind: "RATIO_STATE", Operator: "ABOUT", Threshold: "2",
			}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &File{Strategies: []StrategyDef{tt.def}}
			_, err := f.Build(protocol.NewRegistry())
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	f := &File{Strategies: []StrategyDef{{Name: "x", Calls: []CallDef{{Action: "Borrow", Args: []string{"&owner"}}}}}}
	_, err := f.Build(protocol.NewRegistry())
	assert.ErrorContains(t, err, "takes 3 args, got 1")
}

func TestDeploy_RegistryRejection(t *testing.T) {
	// No triggers: the registry refuses the strategy.
	f, err := Parse([]byte("strategies:\n  - name: a\n    template: boost\n"))
	require.NoError(t, err)

	dep, err := Deploy(context.Background(), newRegistry(), protocol.NewRegistry(), f)
	require.ErrorIs(t, err, registry.ErrNoTriggers)
	assert.Empty(t, dep.Strategies)
}
