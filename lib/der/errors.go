package der

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is returned when a required value, pointer or choice
	// alternative is absent.
	ErrMissingField = errors.New("missing field")

	// ErrBadTime is returned when a time cannot be represented as a
	// GeneralizedTime.
	ErrBadTime = errors.New("bad time value")

	// ErrOverflow is returned when a tag number or length does not fit the
	// encoder's limits.
	ErrOverflow = errors.New("value overflow")

	// ErrInvalidFormat is returned for malformed pre-encoded DER, out of
	// range length fields, and values whose Go type does not match their
	// descriptor.
	ErrInvalidFormat = errors.New("invalid format")
)

// mismatch reports a value whose dynamic type is not the one a descriptor
// was built for.
func mismatch[T any](v any) error {
	var want T
	return fmt.Errorf("%w: value is %T, descriptor expects %T", ErrInvalidFormat, v, want)
}
