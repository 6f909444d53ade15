package envelope

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the store, query engine, dispatcher and the
// transports. Wrap with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrStorageFailure       = errors.New("storage failure")
	ErrBackpressureExceeded = errors.New("backpressure exceeded")
	ErrUnavailable          = errors.New("unavailable")
	ErrSubscriptionClosed   = errors.New("subscription closed")
)

// ErrInvalidCursor reports a cursor that fails to decode or was issued by
// another instance, topic or format version. It is also an ErrInvalidArgument.
var ErrInvalidCursor = fmt.Errorf("%w: invalid cursor", ErrInvalidArgument)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
