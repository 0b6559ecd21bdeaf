// Package trigger evaluates trigger conditions against external readings.
package trigger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"credit-automation/internal/domain"
	"credit-automation/internal/observability"
)

var (
	ErrInvalidTrigger   = errors.New("invalid trigger")
	ErrUnboundThreshold = errors.New("threshold parameter not set")
	ErrUnboundAsset     = errors.New("asset parameter not set")
)

// Subject identifies what a reading is about.
type Subject struct {
	Owner common.Address // position, for RATIO_STATE
	Asset uint64         // asset, for PRICE
}

// Reader reads the current external value for a trigger kind.
type Reader interface {
	ReadExternalValue(ctx context.Context, kind domain.TriggerKind, subject Subject) (decimal.Decimal, error)
}

// Evaluate reports whether the trigger fires for reading.
// OVER fires iff reading > threshold, UNDER iff reading < threshold.
func Evaluate(t domain.Trigger, reading decimal.Decimal) bool {
	switch t.Operator {
	case domain.OperatorOver:
		return reading.GreaterThan(t.Threshold)
	case domain.OperatorUnder:
		return reading.LessThan(t.Threshold)
	default:
		return false
	}
}

// Validate checks a trigger template at registration time.
func Validate(t domain.Trigger) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, t.Kind)
	}
	if !t.Operator.Valid() {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidTrigger, t.Operator)
	}
	if t.ThresholdParam == "" && t.Threshold.IsNegative() {
		return fmt.Errorf("%w: negative threshold %s", ErrInvalidTrigger, t.Threshold)
	}
	if t.ThresholdParam != "" {
		typ, ok := domain.SlotType(t.ThresholdParam)
		if !ok || typ != domain.ParamAmount {
			return fmt.Errorf("%w: %q is not a threshold parameter", ErrInvalidTrigger, t.ThresholdParam)
		}
	}
	if t.AssetParam != "" {
		if t.Kind != domain.TriggerPrice {
			return fmt.Errorf("%w: asset binding on %s trigger", ErrInvalidTrigger, t.Kind)
		}
		typ, ok := domain.SlotType(t.AssetParam)
		if !ok || typ != domain.ParamUint || t.AssetParam == domain.SlotOwner {
			return fmt.Errorf("%w: %q is not an asset parameter", ErrInvalidTrigger, t.AssetParam)
		}
	}
	return nil
}

// Bind resolves subscription-bound threshold and asset into a concrete trigger.
func Bind(t domain.Trigger, params domain.RuntimeParams) (domain.Trigger, error) {
	if t.ThresholdParam != "" {
		v, ok := params.Slot(t.ThresholdParam, common.Address{})
		if !ok || v.Type != domain.ParamAmount {
			return domain.Trigger{}, fmt.Errorf("%w: unknown parameter %q", ErrInvalidTrigger, t.ThresholdParam)
		}
		if v.Amount.IsZero() {
			return domain.Trigger{}, fmt.Errorf("%w: %s", ErrUnboundThreshold, t.ThresholdParam)
		}
		t.Threshold = v.Amount
		t.ThresholdParam = ""
	}
	if t.AssetParam != "" {
		v, ok := params.Slot(t.AssetParam, common.Address{})
		if !ok || v.Type != domain.ParamUint {
			return domain.Trigger{}, fmt.Errorf("%w: unknown parameter %q", ErrInvalidTrigger, t.AssetParam)
		}
		if v.Uint == 0 {
			return domain.Trigger{}, fmt.Errorf("%w: %s", ErrUnboundAsset, t.AssetParam)
		}
		t.Asset = v.Uint
		t.AssetParam = ""
	}
	return t, nil
}

// Outcome is the result of checking a strategy's triggers.
type Outcome struct {
	Fired    bool
	Reading  decimal.Decimal // reading of the first trigger
	Readings []decimal.Decimal
}

// Check binds and evaluates all triggers; they fire only together.
// Evaluation stops at the first trigger that does not fire.
func Check(ctx context.Context, r Reader, triggers []domain.Trigger, params domain.RuntimeParams, owner common.Address) (Outcome, error) {
	if len(triggers) == 0 {
		return Outcome{}, fmt.Errorf("%w: no triggers", ErrInvalidTrigger)
	}

	out := Outcome{Fired: true}
	for i, tmpl := range triggers {
		t, err := Bind(tmpl, params)
		if err != nil {
			return Outcome{}, fmt.Errorf("trigger %d: %w", i, err)
		}
		reading, err := r.ReadExternalValue(ctx, t.Kind, Subject{Owner: owner, Asset: t.Asset})
		if err != nil {
			return Outcome{}, fmt.Errorf("trigger %d: read %s: %w", i, t.Kind, err)
		}
		out.Readings = append(out.Readings, reading)
		if i == 0 {
			out.Reading = reading
		}

		fired := Evaluate(t, reading)
		observability.RecordTriggerEvaluation(string(t.Kind), fired)
		if !fired {
			out.Fired = false
			return out, nil
		}
	}
	return out, nil
}
