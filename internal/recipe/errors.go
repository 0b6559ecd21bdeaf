package recipe

import "errors"

var (
	// ErrSchema is returned when a call's arguments do not match its action descriptor.
	ErrSchema = errors.New("recipe schema error")

	// ErrDanglingReference is returned when a $k reference does not point to an
	// earlier call that declares a return value.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrMalformedPayload is returned by Decode for truncated or corrupt payloads.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnknownAction is returned by Decode when an action id is not in the lookup table.
	ErrUnknownAction = errors.New("unknown action")
)
