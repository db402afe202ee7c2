package binview

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when a buffer is truncated or corrupt.
	ErrMalformed = errors.New("binview: malformed record")

	// ErrValidation is returned when a value fails its schema before
	// encoding.
	ErrValidation = errors.New("binview: validation failed")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
