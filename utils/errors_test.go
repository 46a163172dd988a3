package utils

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestNewUnexpectedTypeError(t *testing.T) {
	for _, tc := range []struct {
		name     string
		expected interface{}
		actual   interface{}
		errStr   string
	}{
		{"one", "exp1", "actual1", `expected string but got string`},
		{"two", 1, "actual2", `expected int but got string`},
		{"three", nil, "actual3", `expected <unknown (nil interface)> but got string`},

		// the WRONG way to use this
		{"four", (someIfc)(nil), 4, `expected <unknown (nil interface)> but got int`},

		// the right way to use this
		{"five", (*someIfc)(nil), 5, `expected utils.someIfc but got int`},

		{"six", (*someStruct)(nil), 6, `expected *utils.someStruct but got int`},
		{"seven", someStruct{}, 7, `expected utils.someStruct but got int`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := NewUnexpectedTypeError(tc.expected, tc.actual)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errStr)
		})
	}
}

func TestNewUnimplementedInterfaceError(t *testing.T) {
	err := NewUnimplementedInterfaceError((*someIfc)(nil), 4)
	test.That(t, err.Error(), test.ShouldEqual, `expected implementation of utils.someIfc but got int`)
}

func TestNewUnknownModeError(t *testing.T) {
	known := []string{"projective", "kdtree"}
	err := NewUnknownModeError("local map", "octree", known)
	test.That(t, err.Error(), test.ShouldEqual, `unknown local map mode "octree", expected one of [kdtree, projective]`)
	// The input slice is left untouched.
	test.That(t, known, test.ShouldResemble, []string{"projective", "kdtree"})
}

func TestConfigValidationErrors(t *testing.T) {
	err := NewConfigValidationFieldRequiredError("odometry.local_map", "mode")
	test.That(t, err.Error(), test.ShouldEqual, `odometry.local_map: "mode" is required`)

	cause := errors.New("must be positive")
	err = NewConfigValidationError("odometry.sigma", cause)
	test.That(t, err.Error(), test.ShouldEqual, `error validating "odometry.sigma": must be positive`)
	test.That(t, errors.Cause(err), test.ShouldEqual, cause)
}

type (
	someStruct struct{}
	someIfc    interface{}
)
