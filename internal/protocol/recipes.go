package protocol

import "credit-automation/internal/domain"

// Runtime slots filled by the bot when a template recipe executes.
const (
	RuntimeAmount = "amount" // size of the first step, in that step's asset units
	RuntimeMinOut = "minOut" // slippage floor for the swap
)

func sub(name string) domain.Argument { return domain.Sub(name) }

// BoostCalls borrows debt, sells it for collateral and supplies it, raising
// leverage until the ratio is at or below targetRatio.
func BoostCalls() []domain.Call {
	return []domain.Call{
		{Action: Borrow, Args: []domain.Argument{sub(domain.SlotOwner), sub(domain.SlotDebtAssetID), domain.Runtime(RuntimeAmount)}},
		{Action: Sell, Args: []domain.Argument{sub(domain.SlotDebtAssetID), sub(domain.SlotCollateralAssetID), domain.Ret(1), domain.Runtime(RuntimeMinOut)}},
		{Action: Supply, Args: []domain.Argument{sub(domain.SlotOwner), sub(domain.SlotCollateralAssetID), domain.Ret(2)}},
		{Action: RatioCheck, Args: []domain.Argument{sub(domain.SlotOwner), domain.Lit(domain.UintValue(RatioStateBoost)), sub(domain.SlotTargetRatio)}},
	}
}

// FlashBoostCalls is BoostCalls funded by a flash loan, for positions whose
// ratio is too close to the minimum to borrow first.
func FlashBoostCalls() []domain.Call {
	return []domain.Call{
		{Action: FlashLoan, Args: []domain.Argument{sub(domain.SlotDebtAssetID), domain.Runtime(RuntimeAmount)}},
		{Action: Sell, Args: []domain.Argument{sub(domain.SlotDebtAssetID), sub(domain.SlotCollateralAssetID), domain.Ret(1), domain.Runtime(RuntimeMinOut)}},
		{Action: Supply, Args: []domain.Argument{sub(domain.SlotOwner), sub(domain.SlotCollateralAssetID), domain.Ret(2)}},
		{Action: Borrow, Args: []domain.Argument{sub(domain.SlotOwner), sub(domain.SlotDebtAssetID), domain.Ret(1)}},
		{Action: FlashPayback, Args: []domain.Argument{sub(domain.SlotDebtAssetID), domain.Ret(4)}},
		{Action: RatioCheck, Args: []domain.Argument{sub(domain.SlotOwner), domain.Lit(domain.UintValue(RatioStateBoost)), sub(domain.SlotTargetRatio)}},
	}
}

// RepayCalls withdraws collateral, sells it for debt and pays debt back until
// the ratio is at or above targetRatio.
func RepayCalls() []domain.Call {
	return []domain.Call{
		{Action: Withdraw, Args: []domain.Argument{sub(domain.SlotOwner), sub(domain.SlotCollateralAssetID), domain.Runtime(RuntimeAmount)}},
		{Action: Sell, Args: []domain.Argument{sub(domain.SlotCollateralAssetID), sub(domain.SlotDebtAssetID), domain.Ret(1), domain.Runtime(RuntimeMinOut)}},
		{Action: Payback, Args: []domain.Argument{sub(domain.SlotOwner), sub(domain.SlotDebtAssetID), domain.Ret(2)}},
		{Action: RatioCheck, Args: []domain.Argument{sub(domain.SlotOwner), domain.Lit(domain.UintValue(RatioStateRepay)), sub(domain.SlotTargetRatio)}},
	}
}

// FlashRepayCalls is RepayCalls funded by a flash loan of collateral, for
// positions that cannot withdraw without breaching the minimum ratio.
func FlashRepayCalls() []domain.Call {
	return []domain.Call{
		{Action: FlashLoan, Args: []domain.Argument{sub(domain.SlotCollateralAssetID), domain.Runtime(RuntimeAmount)}},
		{Action: Sell, Args: []domain.Argument{sub(domain.SlotCollateralAssetID), sub(domain.SlotDebtAssetID), domain.Ret(1), domain.Runtime(RuntimeMinOut)}},
		{Action: Payback, Args: []domain.Argument{sub(domain.SlotOwner), sub(domain.SlotDebtAssetID), domain.Ret(2)}},
		{Action: Withdraw, Args: []domain.Argument{sub(domain.SlotOwner), sub(domain.SlotCollateralAssetID), domain.Ret(1)}},
		{Action: FlashPayback, Args: []domain.Argument{sub(domain.SlotCollateralAssetID), domain.Ret(4)}},
		{Action: RatioCheck, Args: []domain.Argument{sub(domain.SlotOwner), domain.Lit(domain.UintValue(RatioStateRepay)), sub(domain.SlotTargetRatio)}},
	}
}

// CloseCalls unwinds the whole position with a flash loan of the debt: repay
// everything, withdraw all collateral and sell it to return the loan. The
// leftover stays in the owner's balance. It takes no runtime arguments.
func CloseCalls() []domain.Call {
	return []domain.Call{
		{Action: DebtOf, Args: []domain.Argument{sub(domain.SlotOwner), sub(domain.SlotDebtAssetID)}},
		{Action: FlashLoan, Args: []domain.Argument{sub(domain.SlotDebtAssetID), domain.Ret(1)}},
		{Action: Payback, Args: []domain.Argument{sub(domain.SlotOwner), sub(domain.SlotDebtAssetID), domain.Ret(2)}},
		{Action: CollateralOf, Args: []domain.Argument{sub(domain.SlotOwner), sub(domain.SlotCollateralAssetID)}},
		{Action: Withdraw, Args: []domain.Argument{sub(domain.SlotOwner), sub(domain.SlotCollateralAssetID), domain.Ret(4)}},
		{Action: Sell, Args: []domain.Argument{sub(domain.SlotCollateralAssetID), sub(domain.SlotDebtAssetID), domain.Ret(5), domain.Ret(1)}},
		{Action: FlashPayback, Args: []domain.Argument{sub(domain.SlotDebtAssetID), domain.Ret(1)}},
	}
}
