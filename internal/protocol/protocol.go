// Package protocol provides the lending and DEX primitives recipes are built
// from, backed by the simulated ledger.
package protocol

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"credit-automation/internal/action"
	"credit-automation/internal/domain"
)

// Ratio check states.
const (
	RatioStateBoost uint64 = 0 // ratio must end at or below target
	RatioStateRepay uint64 = 1 // ratio must end at or above target
)

// RatioTolerance absorbs rounding in ratio checks.
var RatioTolerance = decimal.New(1, -4)

// FeeCollector receives GasFee deductions.
var FeeCollector = common.HexToAddress("0x00000000000000000000000000000000000fee00")

var (
	ErrForeignPosition  = errors.New("recipe may only act on its own position")
	ErrRatioCheckFailed = errors.New("ratio check failed")
	ErrBadFee           = errors.New("fee out of range")
)

func param(name string, t domain.ParamType) domain.Param {
	return domain.Param{Name: name, Type: t}
}

// Action descriptors.
var (
	Supply = domain.NewActionDescriptor("Supply", domain.ParamAmount,
		param("owner", domain.ParamAddress), param("asset", domain.ParamUint), param("amount", domain.ParamAmount))
	Withdraw = domain.NewActionDescriptor("Withdraw", domain.ParamAmount,
		param("owner", domain.ParamAddress), param("asset", domain.ParamUint), param("amount", domain.ParamAmount))
	Borrow = domain.NewActionDescriptor("Borrow", domain.ParamAmount,
		param("owner", domain.ParamAddress), param("asset", domain.ParamUint), param("amount", domain.ParamAmount))
	Payback = domain.NewActionDescriptor("Payback", domain.ParamAmount,
		param("owner", domain.ParamAddress), param("asset", domain.ParamUint), param("amount", domain.ParamAmount))
	Sell = domain.NewActionDescriptor("Sell", domain.ParamAmount,
		param("from", domain.ParamUint), param("to", domain.ParamUint), param("amount", domain.ParamAmount), param("minOut", domain.ParamAmount))
	FlashLoan = domain.NewActionDescriptor(domain.FlashLoanAction, domain.ParamAmount,
		param("asset", domain.ParamUint), param("amount", domain.ParamAmount))
	FlashPayback = domain.NewActionDescriptor("FlashPayback", domain.ParamNone,
		param("asset", domain.ParamUint), param("amount", domain.ParamAmount))
	GasFee = domain.NewActionDescriptor("GasFee", domain.ParamAmount,
		param("asset", domain.ParamUint), param("amount", domain.ParamAmount), param("feeBps", domain.ParamUint))
	CollateralOf = domain.NewActionDescriptor("CollateralOf", domain.ParamAmount,
		param("owner", domain.ParamAddress), param("asset", domain.ParamUint))
	DebtOf = domain.NewActionDescriptor("DebtOf", domain.ParamAmount,
		param("owner", domain.ParamAddress), param("asset", domain.ParamUint))
	RatioCheck = domain.NewActionDescriptor("RatioCheck", domain.ParamNone,
		param("owner", domain.ParamAddress), param("state", domain.ParamUint), param("target", domain.ParamAmount))
)

// Register installs every primitive into the lookup table.
func Register(r *action.Registry) error {
	handlers := []struct {
		desc domain.ActionDescriptor
		fn   action.HandlerFunc
	}{
		{Supply, supply},
		{Withdraw, withdraw},
		{Borrow, borrow},
		{Payback, payback},
		{Sell, sell},
		{FlashLoan, flashLoan},
		{FlashPayback, flashPayback},
		{GasFee, gasFee},
		{CollateralOf, collateralOf},
		{DebtOf, debtOf},
		{RatioCheck, ratioCheck},
	}
	for _, h := range handlers {
		if err := r.Register(h.desc, h.fn); err != nil {
			return fmt.Errorf("register protocol: %w", err)
		}
	}
	return nil
}

// NewRegistry returns a lookup table with all primitives installed.
func NewRegistry() *action.Registry {
	r := action.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

func own(env action.Env, owner domain.Value) error {
	if owner.Address != env.Owner {
		return fmt.Errorf("%w: %s", ErrForeignPosition, owner.Address.Hex())
	}
	return nil
}

func supply(env action.Env, args []domain.Value) (domain.Value, error) {
	if err := own(env, args[0]); err != nil {
		return domain.Value{}, err
	}
	if err := env.Tx.Supply(env.Owner, args[1].Uint, args[2].Amount); err != nil {
		return domain.Value{}, err
	}
	return args[2], nil
}

func withdraw(env action.Env, args []domain.Value) (domain.Value, error) {
	if err := own(env, args[0]); err != nil {
		return domain.Value{}, err
	}
	if err := env.Tx.Withdraw(env.Owner, args[1].Uint, args[2].Amount); err != nil {
		return domain.Value{}, err
	}
	return args[2], nil
}

func borrow(env action.Env, args []domain.Value) (domain.Value, error) {
	if err := own(env, args[0]); err != nil {
		return domain.Value{}, err
	}
	if err := env.Tx.Borrow(env.Owner, args[1].Uint, args[2].Amount); err != nil {
		return domain.Value{}, err
	}
	return args[2], nil
}

func payback(env action.Env, args []domain.Value) (domain.Value, error) {
	if err := own(env, args[0]); err != nil {
		return domain.Value{}, err
	}
	paid, err := env.Tx.Payback(env.Owner, args[1].Uint, args[2].Amount)
	if err != nil {
		return domain.Value{}, err
	}
	return domain.AmountValue(paid), nil
}

func sell(env action.Env, args []domain.Value) (domain.Value, error) {
	out, err := env.Tx.Sell(env.Owner, args[0].Uint, args[1].Uint, args[2].Amount, args[3].Amount)
	if err != nil {
		return domain.Value{}, err
	}
	return domain.AmountValue(out), nil
}

func flashLoan(env action.Env, args []domain.Value) (domain.Value, error) {
	if err := env.Tx.FlashLoan(env.Owner, args[0].Uint, args[1].Amount); err != nil {
		return domain.Value{}, err
	}
	return args[1], nil
}

func flashPayback(env action.Env, args []domain.Value) (domain.Value, error) {
	return domain.Value{}, env.Tx.FlashPayback(env.Owner, args[0].Uint, args[1].Amount)
}

func gasFee(env action.Env, args []domain.Value) (domain.Value, error) {
	bps := args[2].Uint
	if bps > 10000 {
		return domain.Value{}, fmt.Errorf("%w: %d bps", ErrBadFee, bps)
	}
	amount := args[1].Amount
	fee := amount.Mul(decimal.New(int64(bps), -4))
	if fee.IsPositive() {
		if err := env.Tx.Transfer(env.Owner, FeeCollector, args[0].Uint, fee); err != nil {
			return domain.Value{}, err
		}
	}
	return domain.AmountValue(amount.Sub(fee)), nil
}

func collateralOf(env action.Env, args []domain.Value) (domain.Value, error) {
	if err := own(env, args[0]); err != nil {
		return domain.Value{}, err
	}
	amt, err := env.Tx.Collateral(env.Owner, args[1].Uint)
	if err != nil {
		return domain.Value{}, err
	}
	return domain.AmountValue(amt), nil
}

func debtOf(env action.Env, args []domain.Value) (domain.Value, error) {
	if err := own(env, args[0]); err != nil {
		return domain.Value{}, err
	}
	amt, err := env.Tx.Debt(env.Owner, args[1].Uint)
	if err != nil {
		return domain.Value{}, err
	}
	return domain.AmountValue(amt), nil
}

func ratioCheck(env action.Env, args []domain.Value) (domain.Value, error) {
	if err := own(env, args[0]); err != nil {
		return domain.Value{}, err
	}
	r, err := env.Tx.Ratio(env.Owner)
	if err != nil {
		return domain.Value{}, err
	}
	target := args[2].Amount
	switch args[1].Uint {
	case RatioStateBoost:
		if r.GreaterThan(target.Add(RatioTolerance)) {
			return domain.Value{}, fmt.Errorf("%w: ratio %s above target %s", ErrRatioCheckFailed, r.StringFixed(4), target)
		}
	case RatioStateRepay:
		if r.LessThan(target.Sub(RatioTolerance)) {
			return domain.Value{}, fmt.Errorf("%w: ratio %s below target %s", ErrRatioCheckFailed, r.StringFixed(4), target)
		}
	default:
		return domain.Value{}, fmt.Errorf("%w: unknown state %d", ErrRatioCheckFailed, args[1].Uint)
	}
	return domain.Value{}, nil
}
