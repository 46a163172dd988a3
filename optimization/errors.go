package optimization

import (
	"github.com/pkg/errors"
)

// DegenerateSystemError is returned when the normal equations cannot be solved even with
// damping, or when their inputs are not usable at all.
type DegenerateSystemError struct {
	Reason string
}

// NewDegenerateSystemError returns a DegenerateSystemError with a formatted reason.
func NewDegenerateSystemError(format string, args ...interface{}) error {
	return &DegenerateSystemError{Reason: errors.Errorf(format, args...).Error()}
}

func (e *DegenerateSystemError) Error() string {
	return "degenerate alignment system: " + e.Reason
}

// IsDegenerateSystem reports whether err, or anything it wraps, is a DegenerateSystemError.
func IsDegenerateSystem(err error) bool {
	var target *DegenerateSystemError
	return errors.As(err, &target)
}
