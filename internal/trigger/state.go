package trigger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"credit-automation/internal/domain"
)

// State is the read side of a ledger. Both *ledger.Ledger and *ledger.Tx satisfy it.
type State interface {
	Ratio(owner common.Address) (decimal.Decimal, error)
	Price(asset uint64) (decimal.Decimal, error)
	GasPrice() decimal.Decimal
	Now() int64
}

// StateReader reads trigger values straight from ledger state.
type StateReader struct {
	state State
}

// FromState wraps a ledger view as a Reader.
func FromState(s State) *StateReader {
	return &StateReader{state: s}
}

// ReadExternalValue implements Reader.
func (r *StateReader) ReadExternalValue(ctx context.Context, kind domain.TriggerKind, subject Subject) (decimal.Decimal, error) {
	switch kind {
	case domain.TriggerRatioState:
		return r.state.Ratio(subject.Owner)
	case domain.TriggerPrice:
		return r.state.Price(subject.Asset)
	case domain.TriggerGasPrice:
		return r.state.GasPrice(), nil
	case domain.TriggerTimestamp:
		return decimal.NewFromInt(r.state.Now()), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, kind)
	}
}

var _ Reader = (*StateReader)(nil)
