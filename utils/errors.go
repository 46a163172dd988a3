package utils

import (
	"reflect"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// TypeStr returns the name of the type of v. Pointers to interfaces are unwrapped so that
// callers can pass (*SomeInterface)(nil) to name an interface.
func TypeStr(v interface{}) string {
	if v == nil {
		return "<unknown (nil interface)>"
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Interface {
		return t.Elem().String()
	}
	return t.String()
}

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError(expected, actual interface{}) error {
	return errors.Errorf("expected %s but got %s", TypeStr(expected), TypeStr(actual))
}

// NewUnimplementedInterfaceError is used when there is a failed interface check.
func NewUnimplementedInterfaceError(expected, actual interface{}) error {
	return errors.Errorf("expected implementation of %s but got %s", TypeStr(expected), TypeStr(actual))
}

// NewUnknownModeError is used when a strategy of the given kind is requested under a mode
// that nothing registered.
func NewUnknownModeError(kind, mode string, known []string) error {
	sorted := append([]string(nil), known...)
	sort.Strings(sorted)
	return errors.Errorf("unknown %s mode %q, expected one of [%s]", kind, mode, strings.Join(sorted, ", "))
}

// NewConfigValidationFieldRequiredError is used when a config field is missing or zero.
func NewConfigValidationFieldRequiredError(path, field string) error {
	return errors.Errorf("%s: %q is required", path, field)
}

// NewConfigValidationError is used when a config field holds an invalid value.
func NewConfigValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}
