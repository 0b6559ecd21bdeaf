package subscription

import (
	"fmt"

	"credit-automation/internal/domain"
)

// ValidateParams checks runtime params. Zero means unset.
// Set thresholds must satisfy lower < upper, and a set target must lie
// strictly between whichever thresholds are set.
func ValidateParams(p domain.RuntimeParams) error {
	lower, upper, target := p.LowerThreshold, p.UpperThreshold, p.TargetRatio

	if lower.IsNegative() || upper.IsNegative() || target.IsNegative() {
		return fmt.Errorf("%w: negative threshold or ratio", ErrInvalidParams)
	}
	if !lower.IsZero() && !upper.IsZero() && !lower.LessThan(upper) {
		return fmt.Errorf("%w: lower %s not below upper %s", ErrInvalidParams, lower, upper)
	}
	if target.IsZero() {
		return nil
	}
	if !lower.IsZero() && !target.GreaterThan(lower) {
		return fmt.Errorf("%w: target %s not above lower %s", ErrInvalidParams, target, lower)
	}
	if !upper.IsZero() && !target.LessThan(upper) {
		return fmt.Errorf("%w: target %s not below upper %s", ErrInvalidParams, target, upper)
	}
	return nil
}
