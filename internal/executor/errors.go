package executor

import (
	"errors"

	"credit-automation/internal/trigger"
)

// Execution errors. Every rejected attempt wraps exactly one of these.
var (
	ErrUnknownSubscription  = errors.New("unknown subscription")
	ErrIndexOutOfRange      = errors.New("strategy index out of range")
	ErrInactiveSubscription = errors.New("subscription is inactive")
	ErrUnboundParams        = errors.New("subscription params do not bind the strategy triggers")
	ErrTriggerNotMet        = errors.New("trigger not met")
	ErrExecutionFailed      = errors.New("execution failed")
)

// Recipe argument resolution errors, wrapped in ErrExecutionFailed.
var (
	ErrMissingArgument = errors.New("runtime argument not supplied")
	ErrArgumentType    = errors.New("runtime argument has wrong type")
	ErrUnknownSlot     = errors.New("unknown subscription slot")
)

// Class tells a caller what to do after a rejected attempt.
type Class int

const (
	// ClassUnknown covers context cancellation and storage failures.
	ClassUnknown Class = iota
	// ClassNotYet: conditions do not hold now, try again next round.
	ClassNotYet
	// ClassRetryable: the strategy failed atomically, a fallback variant may succeed.
	ClassRetryable
	// ClassConfig: the request can never succeed as given.
	ClassConfig
)

func (c Class) String() string {
	switch c {
	case ClassNotYet:
		return "not_yet"
	case ClassRetryable:
		return "retryable"
	case ClassConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Classify maps an Execute error to a Class.
func Classify(err error) Class {
	switch {
	case errors.Is(err, ErrTriggerNotMet):
		return ClassNotYet
	case errors.Is(err, ErrExecutionFailed):
		return ClassRetryable
	case errors.Is(err, ErrUnknownSubscription),
		errors.Is(err, ErrIndexOutOfRange),
		errors.Is(err, ErrInactiveSubscription),
		errors.Is(err, ErrUnboundParams):
		return ClassConfig
	default:
		return ClassUnknown
	}
}

// Kind returns the sentinel name recorded in the execution log, or "" for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownSubscription):
		return "UnknownSubscription"
	case errors.Is(err, ErrIndexOutOfRange):
		return "IndexOutOfRange"
	case errors.Is(err, ErrInactiveSubscription):
		return "InactiveSubscription"
	case errors.Is(err, ErrUnboundParams):
		return "UnboundParams"
	case errors.Is(err, ErrTriggerNotMet):
		return "TriggerNotMet"
	case errors.Is(err, ErrExecutionFailed):
		return "ExecutionFailed"
	default:
		return "Unknown"
	}
}

// IsBindError reports whether err from trigger.Check comes from params that
// cannot bind a trigger rather than from reading the external value.
func IsBindError(err error) bool {
	return errors.Is(err, trigger.ErrUnboundThreshold) ||
		errors.Is(err, trigger.ErrUnboundAsset) ||
		errors.Is(err, trigger.ErrInvalidTrigger)
}
