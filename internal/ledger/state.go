package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Position is a lending position: per-asset collateral and debt amounts.
type Position struct {
	Owner      common.Address
	Collateral map[uint64]decimal.Decimal
	Debt       map[uint64]decimal.Decimal
}

// PositionValue is a position priced in the oracle's quote unit.
type PositionValue struct {
	Collateral decimal.Decimal
	Debt       decimal.Decimal
}

// Ratio returns collateral value over debt value.
func (v PositionValue) Ratio() (decimal.Decimal, error) {
	if !v.Debt.IsPositive() {
		return decimal.Zero, ErrNoDebt
	}
	return v.Collateral.Div(v.Debt), nil
}

type state struct {
	positions map[common.Address]*Position
	balances  map[common.Address]map[uint64]decimal.Decimal
	prices    map[uint64]decimal.Decimal
	liquidity map[uint64]decimal.Decimal
	flashOut  map[uint64]decimal.Decimal
	gasPrice  decimal.Decimal
	now       int64
}

func newState() *state {
	return &state{
		positions: make(map[common.Address]*Position),
		balances:  make(map[common.Address]map[uint64]decimal.Decimal),
		prices:    make(map[uint64]decimal.Decimal),
		liquidity: make(map[uint64]decimal.Decimal),
		flashOut:  make(map[uint64]decimal.Decimal),
	}
}

// clone deep-copies the state. decimal.Decimal is immutable, so copying
// the maps is sufficient.
func (s *state) clone() *state {
	c := &state{
		positions: make(map[common.Address]*Position, len(s.positions)),
		balances:  make(map[common.Address]map[uint64]decimal.Decimal, len(s.balances)),
		prices:    copyAmounts(s.prices),
		liquidity: copyAmounts(s.liquidity),
		flashOut:  copyAmounts(s.flashOut),
		gasPrice:  s.gasPrice,
		now:       s.now,
	}
	for owner, p := range s.positions {
		c.positions[owner] = p.clone()
	}
	for owner, b := range s.balances {
		c.balances[owner] = copyAmounts(b)
	}
	return c
}

func (p *Position) clone() *Position {
	return &Position{
		Owner:      p.Owner,
		Collateral: copyAmounts(p.Collateral),
		Debt:       copyAmounts(p.Debt),
	}
}

func copyAmounts(m map[uint64]decimal.Decimal) map[uint64]decimal.Decimal {
	out := make(map[uint64]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) price(asset uint64) (decimal.Decimal, error) {
	p, ok := s.prices[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrUnknownAsset, asset)
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: asset %d at %s", ErrInvalidPrice, asset, p)
	}
	return p, nil
}

func (s *state) position(owner common.Address) (*Position, error) {
	p, ok := s.positions[owner]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPosition, owner.Hex())
	}
	return p, nil
}

func (s *state) value(owner common.Address) (PositionValue, error) {
	p, err := s.position(owner)
	if err != nil {
		return PositionValue{}, err
	}
	var v PositionValue
	for asset, amt := range p.Collateral {
		px, err := s.price(asset)
		if err != nil {
			return PositionValue{}, err
		}
		v.Collateral = v.Collateral.Add(amt.Mul(px))
	}
	for asset, amt := range p.Debt {
		px, err := s.price(asset)
		if err != nil {
			return PositionValue{}, err
		}
		v.Debt = v.Debt.Add(amt.Mul(px))
	}
	return v, nil
}

func (s *state) ratio(owner common.Address) (decimal.Decimal, error) {
	v, err := s.value(owner)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := v.Ratio()
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", owner.Hex(), err)
	}
	return r, nil
}

func (s *state) balance(owner common.Address, asset uint64) decimal.Decimal {
	return s.balances[owner][asset]
}

func (s *state) credit(owner common.Address, asset uint64, amount decimal.Decimal) {
	b, ok := s.balances[owner]
	if !ok {
		b = make(map[uint64]decimal.Decimal)
		s.balances[owner] = b
	}
	b[asset] = b[asset].Add(amount)
}

func (s *state) debit(owner common.Address, asset uint64, amount decimal.Decimal) error {
	have := s.balance(owner, asset)
	if have.LessThan(amount) {
		return fmt.Errorf("%w: asset %d has %s, need %s", ErrInsufficientBalance, asset, have, amount)
	}
	s.balances[owner][asset] = have.Sub(amount)
	return nil
}
