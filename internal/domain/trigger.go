package domain

import "github.com/shopspring/decimal"

// TriggerKind names the external scalar a trigger compares against.
type TriggerKind string

// Trigger kinds
const (
	TriggerRatioState TriggerKind = "RATIO_STATE" // collateral/debt value ratio of the position
	TriggerGasPrice   TriggerKind = "GAS_PRICE"   // current network gas price
	TriggerPrice      TriggerKind = "PRICE"       // oracle price of an asset
	TriggerTimestamp  TriggerKind = "TIMESTAMP"   // ledger clock, unix seconds
)

// Valid reports whether k is a known kind.
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerRatioState, TriggerGasPrice, TriggerPrice, TriggerTimestamp:
		return true
	default:
		return false
	}
}

// Operator is the comparison applied between reading and threshold.
type Operator string

// Comparison operators
const (
	OperatorOver  Operator = "OVER"  // fires iff reading > threshold
	OperatorUnder Operator = "UNDER" // fires iff reading < threshold
)

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	return o == OperatorOver || o == OperatorUnder
}

// Trigger is a boolean condition over one externally observed scalar.
// Threshold and reading share one fixed-point scale (ratios as 2.2 for 220%).
type Trigger struct {
	Kind      TriggerKind     `json:"kind"`
	Operator  Operator        `json:"operator"`
	Threshold decimal.Decimal `json:"threshold"`

	// ThresholdParam, when set, binds the threshold from the subscription
	// (e.g. "upperThreshold") and overrides Threshold.
	ThresholdParam string `json:"threshold_param,omitempty"`

	// Asset selects the price feed for PRICE triggers. AssetParam binds it
	// from the subscription ("collateralAssetId" or "debtAssetId").
	Asset      uint64 `json:"asset,omitempty"`
	AssetParam string `json:"asset_param,omitempty"`
}
