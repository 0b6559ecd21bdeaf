package protocol

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-automation/internal/action"
	"credit-automation/internal/domain"
	"credit-automation/internal/ledger"
)

const (
	eth uint64 = 1
	dai uint64 = 2
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000bad")
)

func amt(s string) domain.Value {
	return domain.AmountValue(decimal.RequireFromString(s))
}

func setup(t *testing.T) (*ledger.Ledger, *action.Registry) {
	t.Helper()
	l := ledger.New(ledger.WithMinRatio(decimal.RequireFromString("1.2")))
	l.SetPrice(eth, decimal.NewFromInt(2000))
	l.SetPrice(dai, decimal.NewFromInt(1))
	l.OpenPosition(owner, eth, decimal.NewFromInt(10), dai, decimal.NewFromInt(10000))
	return l, NewRegistry()
}

func run(t *testing.T, l *ledger.Ledger, r *action.Registry, steps func(dispatch func(domain.ActionDescriptor, ...domain.Value) (domain.Value, error)) error) error {
	t.Helper()
	return l.Execute(context.Background(), func(tx *ledger.Tx) error {
		env := action.Env{Tx: tx, Owner: owner}
		return steps(func(d domain.ActionDescriptor, args ...domain.Value) (domain.Value, error) {
			return r.Dispatch(env, d.ID, args)
		})
	})
}

func TestRegister_AllPrimitives(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{
		"Borrow", "CollateralOf", "DebtOf", "FlashLoan", "FlashPayback", "GasFee",
		"Payback", "RatioCheck", "Sell", "Supply", "Withdraw",
	}, r.Names())

	require.Error(t, Register(r), "second registration must fail")
}

func TestRepay_WithdrawSellPayback(t *testing.T) {
	l, r := setup(t)

	err := run(t, l, r, func(dispatch func(domain.ActionDescriptor, ...domain.Value) (domain.Value, error)) error {
		w, err := dispatch(Withdraw, domain.AddressValue(owner), domain.UintValue(eth), amt("1"))
		if err != nil {
			return err
		}
		s, err := dispatch(Sell, domain.UintValue(eth), domain.UintValue(dai), w, amt("1990"))
		if err != nil {
			return err
		}
		if _, err := dispatch(Payback, domain.AddressValue(owner), domain.UintValue(dai), s); err != nil {
			return err
		}
		_, err = dispatch(RatioCheck, domain.AddressValue(owner), domain.UintValue(RatioStateRepay), amt("2.2"))
		return err
	})
	require.NoError(t, err)

	ratio, err := l.Ratio(owner)
	require.NoError(t, err)
	assert.True(t, ratio.Equal(decimal.RequireFromString("2.25")), "ratio = %s", ratio)
}

func TestFlashBoost(t *testing.T) {
	l, r := setup(t)
	l.SetFlashLiquidity(dai, decimal.NewFromInt(100000))

	err := run(t, l, r, func(dispatch func(domain.ActionDescriptor, ...domain.Value) (domain.Value, error)) error {
		fl, err := dispatch(FlashLoan, domain.UintValue(dai), amt("2000"))
		if err != nil {
			return err
		}
		s, err := dispatch(Sell, domain.UintValue(dai), domain.UintValue(eth), fl, amt("0"))
		if err != nil {
			return err
		}
		if _, err := dispatch(Supply, domain.AddressValue(owner), domain.UintValue(eth), s); err != nil {
			return err
		}
		b, err := dispatch(Borrow, domain.AddressValue(owner), domain.UintValue(dai), fl)
		if err != nil {
			return err
		}
		_, err = dispatch(FlashPayback, domain.UintValue(dai), b)
		return err
	})
	require.NoError(t, err)

	p, err := l.Position(owner)
	require.NoError(t, err)
	assert.True(t, p.Collateral[eth].Equal(decimal.NewFromInt(11)))
	assert.True(t, p.Debt[dai].Equal(decimal.NewFromInt(12000)))
}

func TestClose_UnwindsWholePosition(t *testing.T) {
	l, r := setup(t)
	l.SetFlashLiquidity(dai, decimal.NewFromInt(100000))

	err := run(t, l, r, func(dispatch func(domain.ActionDescriptor, ...domain.Value) (domain.Value, error)) error {
		debt, err := dispatch(DebtOf, domain.AddressValue(owner), domain.UintValue(dai))
		if err != nil {
			return err
		}
		fl, err := dispatch(FlashLoan, domain.UintValue(dai), debt)
		if err != nil {
			return err
		}
		if _, err := dispatch(Payback, domain.AddressValue(owner), domain.UintValue(dai), fl); err != nil {
			return err
		}
		coll, err := dispatch(CollateralOf, domain.AddressValue(owner), domain.UintValue(eth))
		if err != nil {
			return err
		}
		w, err := dispatch(Withdraw, domain.AddressValue(owner), domain.UintValue(eth), coll)
		if err != nil {
			return err
		}
		if _, err := dispatch(Sell, domain.UintValue(eth), domain.UintValue(dai), w, debt); err != nil {
			return err
		}
		_, err = dispatch(FlashPayback, domain.UintValue(dai), debt)
		return err
	})
	require.NoError(t, err)

	p, err := l.Position(owner)
	require.NoError(t, err)
	assert.Empty(t, p.Debt)
	assert.True(t, p.Collateral[eth].IsZero())
	assert.True(t, l.Balance(owner, dai).Equal(decimal.NewFromInt(10000)), "balance = %s", l.Balance(owner, dai))

	_, err = l.Ratio(owner)
	assert.ErrorIs(t, err, ledger.ErrNoDebt)
}

func TestForeignPositionRejected(t *testing.T) {
	l, r := setup(t)
	l.Fund(owner, eth, decimal.NewFromInt(1))

	err := run(t, l, r, func(dispatch func(domain.ActionDescriptor, ...domain.Value) (domain.Value, error)) error {
		_, err := dispatch(Supply, domain.AddressValue(stranger), domain.UintValue(eth), amt("1"))
		return err
	})
	require.ErrorIs(t, err, ErrForeignPosition)
}

func TestRatioCheck(t *testing.T) {
	tests := []struct {
		name    string
		state   uint64
		target  string
		wantErr bool
	}{
		{name: "boost at target", state: RatioStateBoost, target: "2"},
		{name: "boost above target", state: RatioStateBoost, target: "1.9", wantErr: true},
		{name: "boost within tolerance", state: RatioStateBoost, target: "1.99995"},
		{name: "repay at target", state: RatioStateRepay, target: "2"},
		{name: "repay below target", state: RatioStateRepay, target: "2.1", wantErr: true},
		{name: "unknown state", state: 7, target: "2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, r := setup(t)
			err := run(t, l, r, func(dispatch func(domain.ActionDescriptor, ...domain.Value) (domain.Value, error)) error {
				_, err := dispatch(RatioCheck, domain.AddressValue(owner), domain.UintValue(tt.state), amt(tt.target))
				return err
			})
			if tt.wantErr {
				require.ErrorIs(t, err, ErrRatioCheckFailed)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGasFee(t *testing.T) {
	l, r := setup(t)
	l.Fund(owner, dai, decimal.NewFromInt(1000))

	var left domain.Value
	err := run(t, l, r, func(dispatch func(domain.ActionDescriptor, ...domain.Value) (domain.Value, error)) error {
		var err error
		left, err = dispatch(GasFee, domain.UintValue(dai), amt("1000"), domain.UintValue(25))
		return err
	})
	require.NoError(t, err)
	assert.True(t, left.Amount.Equal(decimal.RequireFromString("997.5")))
	assert.True(t, l.Balance(FeeCollector, dai).Equal(decimal.RequireFromString("2.5")))

	err = run(t, l, r, func(dispatch func(domain.ActionDescriptor, ...domain.Value) (domain.Value, error)) error {
		_, err := dispatch(GasFee, domain.UintValue(dai), amt("1"), domain.UintValue(10001))
		return err
	})
	require.ErrorIs(t, err, ErrBadFee)
}

func TestSellSlippageRollsBackEarlierSteps(t *testing.T) {
	l, r := setup(t)

	err := run(t, l, r, func(dispatch func(domain.ActionDescriptor, ...domain.Value) (domain.Value, error)) error {
		w, err := dispatch(Withdraw, domain.AddressValue(owner), domain.UintValue(eth), amt("1"))
		if err != nil {
			return err
		}
		_, err = dispatch(Sell, domain.UintValue(eth), domain.UintValue(dai), w, amt("2500"))
		return err
	})
	require.ErrorIs(t, err, ledger.ErrSlippage)

	p, err := l.Position(owner)
	require.NoError(t, err)
	assert.True(t, p.Collateral[eth].Equal(decimal.NewFromInt(10)))
	assert.True(t, l.Balance(owner, eth).IsZero())
}
