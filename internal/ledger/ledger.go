// Package ledger is an in-process stand-in for the external ledger: it holds
// positions, balances, oracle prices, the gas price and a clock, and applies
// transactions atomically and in a total order.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultMinRatio is the lowest collateral ratio a borrow or withdraw may leave behind.
var DefaultMinRatio = decimal.RequireFromString("1.1")

// Ledger serializes transactions behind a single lock. Each transaction runs
// against a private copy of the state that replaces the live state only when
// the transaction function returns nil.
type Ledger struct {
	mu       sync.RWMutex
	st       *state
	minRatio decimal.Decimal
	swapFee  decimal.Decimal // fraction taken by Sell
	seq      uint64          // committed transactions
	logger   *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(lg *Ledger) {
		lg.logger = l
	}
}

// WithMinRatio sets the minimum ratio enforced after borrow and withdraw.
func WithMinRatio(r decimal.Decimal) Option {
	return func(lg *Ledger) {
		lg.minRatio = r
	}
}

// WithSwapFeeBps sets the Sell fee in basis points.
func WithSwapFeeBps(bps int64) Option {
	return func(lg *Ledger) {
		lg.swapFee = decimal.New(bps, -4)
	}
}

// New creates an empty ledger whose clock starts at the current time.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		st:       newState(),
		minRatio: DefaultMinRatio,
		logger:   zap.NewNop(),
	}
	l.st.now = time.Now().Unix()
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Execute runs fn as one atomic transaction. If fn returns an error, or a flash
// loan is left outstanding, no effect of the transaction is kept.
// Once fn starts, cancellation of ctx has no effect.
func (l *Ledger) Execute(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &Tx{st: l.st.clone(), minRatio: l.minRatio, swapFee: l.swapFee}
	if err := fn(tx); err != nil {
		l.logger.Debug("transaction reverted", zap.Uint64("seq", l.seq), zap.Error(err))
		return err
	}
	if err := tx.Settled(); err != nil {
		l.logger.Debug("transaction reverted", zap.Uint64("seq", l.seq), zap.Error(err))
		return err
	}

	l.st = tx.st
	l.seq++
	l.logger.Debug("transaction committed", zap.Uint64("seq", l.seq))
	return nil
}

// Committed returns the number of committed transactions.
func (l *Ledger) Committed() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Position returns a copy of the owner's position.
func (l *Ledger) Position(owner common.Address) (Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, err := l.st.position(owner)
	if err != nil {
		return Position{}, err
	}
	return *p.clone(), nil
}

// Value prices the owner's position.
func (l *Ledger) Value(owner common.Address) (PositionValue, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.value(owner)
}

// Ratio returns the owner's collateral/debt value ratio.
func (l *Ledger) Ratio(owner common.Address) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.ratio(owner)
}

// Price returns the oracle price of an asset.
func (l *Ledger) Price(asset uint64) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.price(asset)
}

// GasPrice returns the current gas price.
func (l *Ledger) GasPrice() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.gasPrice
}

// Now returns the ledger clock in unix seconds.
func (l *Ledger) Now() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.now
}

// Balance returns the owner's free balance of an asset.
func (l *Ledger) Balance(owner common.Address, asset uint64) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.balance(owner, asset)
}

// SetPrice sets an oracle price.
func (l *Ledger) SetPrice(asset uint64, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.prices[asset] = price
}

// SetGasPrice sets the network gas price.
func (l *Ledger) SetGasPrice(p decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.gasPrice = p
}

// SetClock sets the ledger clock (unix seconds).
func (l *Ledger) SetClock(unix int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.now = unix
}

// OpenPosition creates or replaces a position with a single collateral and debt asset.
func (l *Ledger) OpenPosition(owner common.Address, collAsset uint64, coll decimal.Decimal, debtAsset uint64, debt decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := &Position{
		Owner:      owner,
		Collateral: map[uint64]decimal.Decimal{collAsset: coll},
		Debt:       map[uint64]decimal.Decimal{},
	}
	if debt.IsPositive() {
		p.Debt[debtAsset] = debt
	}
	l.st.positions[owner] = p
}

// Fund credits an owner's free balance.
func (l *Ledger) Fund(owner common.Address, asset uint64, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.credit(owner, asset, amount)
}

// SetFlashLiquidity sets how much of an asset the flash lender can lend.
func (l *Ledger) SetFlashLiquidity(asset uint64, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.liquidity[asset] = amount
}
