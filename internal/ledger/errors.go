package ledger

import "errors"

var (
	ErrNoPosition             = errors.New("no position")
	ErrNoDebt                 = errors.New("position has no debt")
	ErrUnknownAsset           = errors.New("unknown asset")
	ErrInvalidPrice           = errors.New("price must be positive")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientLiquidity  = errors.New("insufficient flash liquidity")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrUndercollateralized    = errors.New("position below minimum ratio")
	ErrSlippage               = errors.New("output below minimum")
	ErrFlashLoanNotRepaid     = errors.New("flash loan not repaid")
	ErrNonPositiveAmount      = errors.New("amount must be positive")
)
