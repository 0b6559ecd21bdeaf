package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Tx is the view of the ledger inside one transaction. It must not be
// retained after the transaction function returns.
type Tx struct {
	st       *state
	minRatio decimal.Decimal
	swapFee  decimal.Decimal
}

// Ratio returns the owner's ratio as seen by this transaction.
func (tx *Tx) Ratio(owner common.Address) (decimal.Decimal, error) {
	return tx.st.ratio(owner)
}

// Value prices the owner's position as seen by this transaction.
func (tx *Tx) Value(owner common.Address) (PositionValue, error) {
	return tx.st.value(owner)
}

// Price returns the oracle price of an asset.
func (tx *Tx) Price(asset uint64) (decimal.Decimal, error) {
	return tx.st.price(asset)
}

// GasPrice returns the gas price.
func (tx *Tx) GasPrice() decimal.Decimal {
	return tx.st.gasPrice
}

// Now returns the clock in unix seconds.
func (tx *Tx) Now() int64 {
	return tx.st.now
}

// Collateral returns how much of asset the owner has supplied.
func (tx *Tx) Collateral(owner common.Address, asset uint64) (decimal.Decimal, error) {
	p, err := tx.st.position(owner)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Collateral[asset], nil
}

// Debt returns how much of asset the owner owes.
func (tx *Tx) Debt(owner common.Address, asset uint64) (decimal.Decimal, error) {
	p, err := tx.st.position(owner)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Debt[asset], nil
}

// Balance returns the owner's free balance.
func (tx *Tx) Balance(owner common.Address, asset uint64) decimal.Decimal {
	return tx.st.balance(owner, asset)
}

// Supply moves amount of asset from the owner's balance into collateral.
func (tx *Tx) Supply(owner common.Address, asset uint64, amount decimal.Decimal) error {
	if err := positive(amount); err != nil {
		return err
	}
	p, err := tx.st.position(owner)
	if err != nil {
		return err
	}
	if err := tx.st.debit(owner, asset, amount); err != nil {
		return err
	}
	p.Collateral[asset] = p.Collateral[asset].Add(amount)
	return nil
}

// Withdraw moves collateral to the owner's balance. The position must stay above
// the minimum ratio.
func (tx *Tx) Withdraw(owner common.Address, asset uint64, amount decimal.Decimal) error {
	if err := positive(amount); err != nil {
		return err
	}
	p, err := tx.st.position(owner)
	if err != nil {
		return err
	}
	have := p.Collateral[asset]
	if have.LessThan(amount) {
		return fmt.Errorf("%w: asset %d has %s, need %s", ErrInsufficientCollateral, asset, have, amount)
	}
	p.Collateral[asset] = have.Sub(amount)
	tx.st.credit(owner, asset, amount)
	return tx.checkHealth(owner)
}

// Borrow adds debt and credits the borrowed amount. The position must stay above
// the minimum ratio.
func (tx *Tx) Borrow(owner common.Address, asset uint64, amount decimal.Decimal) error {
	if err := positive(amount); err != nil {
		return err
	}
	p, err := tx.st.position(owner)
	if err != nil {
		return err
	}
	if _, err := tx.st.price(asset); err != nil {
		return err
	}
	p.Debt[asset] = p.Debt[asset].Add(amount)
	tx.st.credit(owner, asset, amount)
	return tx.checkHealth(owner)
}

// Payback repays up to amount of debt from the owner's balance and returns
// the amount actually repaid.
func (tx *Tx) Payback(owner common.Address, asset uint64, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := positive(amount); err != nil {
		return decimal.Zero, err
	}
	p, err := tx.st.position(owner)
	if err != nil {
		return decimal.Zero, err
	}
	paid := decimal.Min(amount, p.Debt[asset])
	if err := tx.st.debit(owner, asset, paid); err != nil {
		return decimal.Zero, err
	}
	if rest := p.Debt[asset].Sub(paid); rest.IsPositive() {
		p.Debt[asset] = rest
	} else {
		delete(p.Debt, asset)
	}
	return paid, nil
}

// Sell swaps amount of from into to at oracle prices less the swap fee.
// It fails with ErrSlippage when the output is below minOut.
func (tx *Tx) Sell(owner common.Address, from, to uint64, amount, minOut decimal.Decimal) (decimal.Decimal, error) {
	if err := positive(amount); err != nil {
		return decimal.Zero, err
	}
	pin, err := tx.st.price(from)
	if err != nil {
		return decimal.Zero, err
	}
	pout, err := tx.st.price(to)
	if err != nil {
		return decimal.Zero, err
	}
	out := amount.Mul(pin).Div(pout).Mul(decimal.NewFromInt(1).Sub(tx.swapFee))
	if out.LessThan(minOut) {
		return decimal.Zero, fmt.Errorf("%w: got %s, want at least %s", ErrSlippage, out, minOut)
	}
	if err := tx.st.debit(owner, from, amount); err != nil {
		return decimal.Zero, err
	}
	tx.st.credit(owner, to, out)
	return out, nil
}

// FlashLoan lends amount to the owner for the rest of the transaction.
func (tx *Tx) FlashLoan(owner common.Address, asset uint64, amount decimal.Decimal) error {
	if err := positive(amount); err != nil {
		return err
	}
	avail := tx.st.liquidity[asset]
	if avail.LessThan(amount) {
		return fmt.Errorf("%w: asset %d has %s, need %s", ErrInsufficientLiquidity, asset, avail, amount)
	}
	tx.st.liquidity[asset] = avail.Sub(amount)
	tx.st.flashOut[asset] = tx.st.flashOut[asset].Add(amount)
	tx.st.credit(owner, asset, amount)
	return nil
}

// FlashPayback returns borrowed flash liquidity.
func (tx *Tx) FlashPayback(owner common.Address, asset uint64, amount decimal.Decimal) error {
	if err := positive(amount); err != nil {
		return err
	}
	if err := tx.st.debit(owner, asset, amount); err != nil {
		return err
	}
	tx.st.liquidity[asset] = tx.st.liquidity[asset].Add(amount)
	if rest := tx.st.flashOut[asset].Sub(amount); rest.IsPositive() {
		tx.st.flashOut[asset] = rest
	} else {
		delete(tx.st.flashOut, asset)
	}
	return nil
}

// Settled returns ErrFlashLoanNotRepaid while any flash loan is outstanding.
// Execute checks it after fn; fn may check it earlier before side effects
// outside the ledger.
func (tx *Tx) Settled() error {
	for asset, out := range tx.st.flashOut {
		if out.IsPositive() {
			return fmt.Errorf("%w: asset %d owes %s", ErrFlashLoanNotRepaid, asset, out)
		}
	}
	return nil
}

// Transfer moves free balance between accounts.
func (tx *Tx) Transfer(from, to common.Address, asset uint64, amount decimal.Decimal) error {
	if err := positive(amount); err != nil {
		return err
	}
	if err := tx.st.debit(from, asset, amount); err != nil {
		return err
	}
	tx.st.credit(to, asset, amount)
	return nil
}

func (tx *Tx) checkHealth(owner common.Address) error {
	v, err := tx.st.value(owner)
	if err != nil {
		return err
	}
	if !v.Debt.IsPositive() {
		return nil
	}
	r, _ := v.Ratio()
	if r.LessThan(tx.minRatio) {
		return fmt.Errorf("%w: %s < %s", ErrUndercollateralized, r.StringFixed(4), tx.minRatio)
	}
	return nil
}

func positive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrNonPositiveAmount, amount)
	}
	return nil
}
