package odometry

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigError is returned when an odometry cannot be built from its configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "invalid odometry configuration: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

func newConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Err: err}
}

// IsConfigError reports whether err was caused by an invalid configuration.
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// InputError is returned when a frame cannot be read. The odometry state is left untouched.
type InputError struct {
	Key string
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid frame input %q: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *InputError) Unwrap() error {
	return e.Err
}

func newInputError(key string, err error) error {
	return &InputError{Key: key, Err: err}
}

// IsInputError reports whether err was caused by a malformed frame.
func IsInputError(err error) bool {
	var target *InputError
	return errors.As(err, &target)
}
