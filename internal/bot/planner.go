package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"credit-automation/internal/domain"
	"credit-automation/internal/ledger"
	"credit-automation/internal/protocol"
	"credit-automation/internal/recipe"
)

var (
	ErrNoTarget = errors.New("subscription has no target ratio")
	ErrAtTarget = errors.New("position already at target ratio")

	ErrInvalidPrice = errors.New("price must be positive")
)

// Planner supplies the runtime arguments of a strategy about to be executed.
type Planner interface {
	Plan(ctx context.Context, sub *domain.Subscription, strategy *domain.Strategy) (map[string]domain.Value, error)
}

// PositionView is the read side the planner sizes trades from. *ledger.Ledger satisfies it.
type PositionView interface {
	Value(owner common.Address) (ledger.PositionValue, error)
	Price(asset uint64) (decimal.Decimal, error)
}

// TargetRatioPlanner sizes the first step of a boost or repay recipe so the
// position lands on the subscription's target ratio after swap fees.
//
// With collateral value C, debt value D, target t and fee kept k = 1-fee:
//
//	boost: (C + k*x) / (D + x)   = t  =>  x = (C - t*D) / (t - k)
//	repay: (C - x)   / (D - k*x) = t  =>  x = (t*D - C) / (t*k - 1)
//
// x is a value; the amount is x divided by the price of the asset sold.
// Recipes without runtime slots, such as a full close, get no arguments.
type TargetRatioPlanner struct {
	view     PositionView
	actions  recipe.Lookup
	keep     decimal.Decimal
	slippage decimal.Decimal
}

// NewTargetRatioPlanner creates a planner. feeBps must match the ledger's swap
// fee; slippageBps is the tolerance below the expected swap output.
func NewTargetRatioPlanner(view PositionView, feeBps, slippageBps int64) *TargetRatioPlanner {
	one := decimal.NewFromInt(1)
	return &TargetRatioPlanner{
		view:     view,
		actions:  protocol.NewRegistry(),
		keep:     one.Sub(decimal.New(feeBps, -4)),
		slippage: one.Sub(decimal.New(slippageBps, -4)),
	}
}

// Plan implements Planner. It fills %amount and %minOut.
func (p *TargetRatioPlanner) Plan(_ context.Context, sub *domain.Subscription, strategy *domain.Strategy) (map[string]domain.Value, error) {
	if strategy != nil && len(strategy.Payload) > 0 {
		r, err := recipe.Decode(strategy.Payload, p.actions)
		if err != nil {
			return nil, fmt.Errorf("strategy %d: %w", strategy.ID, err)
		}
		if len(recipe.RuntimeSlots(r)) == 0 {
			return nil, nil
		}
	}

	t := sub.Params.TargetRatio
	if !t.IsPositive() {
		return nil, fmt.Errorf("subscription %d: %w", sub.ID, ErrNoTarget)
	}

	v, err := p.view.Value(sub.Owner)
	if err != nil {
		return nil, fmt.Errorf("position of %s: %w", sub.Owner.Hex(), err)
	}
	pColl, err := p.view.Price(sub.Params.CollateralAssetID)
	if err != nil {
		return nil, err
	}
	pDebt, err := p.view.Price(sub.Params.DebtAssetID)
	if err != nil {
		return nil, err
	}

	if !pColl.IsPositive() || !pDebt.IsPositive() {
		return nil, fmt.Errorf("%w: collateral %s, debt %s", ErrInvalidPrice, pColl, pDebt)
	}

	c, d := v.Collateral, v.Debt
	tD := t.Mul(d)

	var amount, out decimal.Decimal
	switch c.Cmp(tD) {
	case 1:
		den := t.Sub(p.keep)
		if !den.IsPositive() {
			return nil, fmt.Errorf("target %s unreachable by boosting", t)
		}
		x := c.Sub(tD).Div(den)
		amount = x.Div(pDebt)
		out = amount.Mul(pDebt).Div(pColl).Mul(p.keep)
	case -1:
		den := t.Mul(p.keep).Sub(decimal.NewFromInt(1))
		if !den.IsPositive() {
			return nil, fmt.Errorf("target %s unreachable by repaying", t)
		}
		x := tD.Sub(c).Div(den)
		amount = x.Div(pColl)
		out = amount.Mul(pColl).Div(pDebt).Mul(p.keep)
	default:
		return nil, fmt.Errorf("subscription %d: %w", sub.ID, ErrAtTarget)
	}

	return map[string]domain.Value{
		protocol.RuntimeAmount: domain.AmountValue(amount),
		protocol.RuntimeMinOut: domain.AmountValue(out.Mul(p.slippage)),
	}, nil
}

var _ Planner = (*TargetRatioPlanner)(nil)
