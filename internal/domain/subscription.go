package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Subscription slot names usable as &name arguments and trigger bindings.
const (
	SlotOwner             = "owner"
	SlotLowerThreshold    = "lowerThreshold"
	SlotUpperThreshold    = "upperThreshold"
	SlotTargetRatio       = "targetRatio"
	SlotCollateralAssetID = "collateralAssetId"
	SlotDebtAssetID       = "debtAssetId"
)

// SlotType returns the declared type of a subscription slot.
func SlotType(name string) (ParamType, bool) {
	switch name {
	case SlotOwner:
		return ParamAddress, true
	case SlotLowerThreshold, SlotUpperThreshold, SlotTargetRatio:
		return ParamAmount, true
	case SlotCollateralAssetID, SlotDebtAssetID:
		return ParamUint, true
	default:
		return ParamNone, false
	}
}

// RuntimeParams are the concrete per-subscription values of a bundle.
// A zero threshold or ratio means unset.
type RuntimeParams struct {
	LowerThreshold    decimal.Decimal `json:"lower_threshold"`
	UpperThreshold    decimal.Decimal `json:"upper_threshold"`
	TargetRatio       decimal.Decimal `json:"target_ratio"`
	CollateralAssetID uint64          `json:"collateral_asset_id"`
	DebtAssetID       uint64          `json:"debt_asset_id"`
}

// Slot resolves a subscription slot to a value.
func (p RuntimeParams) Slot(name string, owner common.Address) (Value, bool) {
	switch name {
	case SlotOwner:
		return AddressValue(owner), true
	case SlotLowerThreshold:
		return AmountValue(p.LowerThreshold), true
	case SlotUpperThreshold:
		return AmountValue(p.UpperThreshold), true
	case SlotTargetRatio:
		return AmountValue(p.TargetRatio), true
	case SlotCollateralAssetID:
		return UintValue(p.CollateralAssetID), true
	case SlotDebtAssetID:
		return UintValue(p.DebtAssetID), true
	default:
		return Value{}, false
	}
}

// Subscription binds a position to a bundle with concrete runtime parameters.
type Subscription struct {
	ID        int64
	Owner     common.Address // position identifier; only the owner may modify
	BundleID  int64
	Params    RuntimeParams
	Active    bool
	CreatedAt int64 // ms
	UpdatedAt int64 // ms
}
