// Package stub provides an in-memory trigger reader for tests and dry runs.
package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"credit-automation/internal/domain"
	"credit-automation/internal/trigger"
)

// ErrNotFound is returned when no value was set for a reading.
var ErrNotFound = errors.New("not found")

// Reader implements trigger.Reader from values set by the test.
type Reader struct {
	mu     sync.RWMutex
	ratios map[common.Address]decimal.Decimal
	prices map[uint64]decimal.Decimal
	gas    *decimal.Decimal
	now    *int64
	calls  int
}

// NewReader creates an empty stub reader.
func NewReader() *Reader {
	return &Reader{
		ratios: make(map[common.Address]decimal.Decimal),
		prices: make(map[uint64]decimal.Decimal),
	}
}

// SetRatio sets the ratio reported for owner.
func (r *Reader) SetRatio(owner common.Address, v decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ratios[owner] = v
}

// SetPrice sets the price reported for asset.
func (r *Reader) SetPrice(asset uint64, v decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[asset] = v
}

// SetGasPrice sets the gas price.
func (r *Reader) SetGasPrice(v decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gas = &v
}

// SetNow sets the timestamp.
func (r *Reader) SetNow(unix int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = &unix
}

// Calls returns how many reads were served.
func (r *Reader) Calls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls
}

// ReadExternalValue implements trigger.Reader.
func (r *Reader) ReadExternalValue(_ context.Context, kind domain.TriggerKind, subject trigger.Subject) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	switch kind {
	case domain.TriggerRatioState:
		if v, ok := r.ratios[subject.Owner]; ok {
			return v, nil
		}
	case domain.TriggerPrice:
		if v, ok := r.prices[subject.Asset]; ok {
			return v, nil
		}
	case domain.TriggerGasPrice:
		if r.gas != nil {
			return *r.gas, nil
		}
	case domain.TriggerTimestamp:
		if r.now != nil {
			return decimal.NewFromInt(*r.now), nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrNotFound, kind)
}

var _ trigger.Reader = (*Reader)(nil)
