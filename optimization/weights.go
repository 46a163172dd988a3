// Package optimization solves robust nonlinear least squares problems with a damped
// Gauss-Newton method.
package optimization

import (
	"math"

	"github.com/pkg/errors"
)

// Scheme selects the robust loss applied to residuals.
type Scheme string

// The supported robust losses. sigma is the scale past which residuals are down weighted.
const (
	LeastSquare  Scheme = "least_square"
	Huber        Scheme = "huber"
	Cauchy       Scheme = "cauchy"
	GemanMcClure Scheme = "geman_mcclure"
)

// Validate returns an error for unknown schemes.
func (s Scheme) Validate() error {
	switch s {
	case LeastSquare, Huber, Cauchy, GemanMcClure:
		return nil
	default:
		return errors.Errorf("unknown weighting scheme %q", string(s))
	}
}

// Weight returns the iteratively reweighted least squares weight of a residual.
func (s Scheme) Weight(r, sigma float64) float64 {
	switch s {
	case Huber:
		if a := math.Abs(r); a > sigma {
			return sigma / a
		}
		return 1
	case Cauchy:
		return 1 / (1 + r*r/(sigma*sigma))
	case GemanMcClure:
		k2 := sigma * sigma
		d := k2 + r*r
		return k2 * k2 / (d * d)
	case LeastSquare:
		fallthrough
	default:
		return 1
	}
}

// Loss returns the robust cost of a residual. Its derivative divided by r is Weight.
func (s Scheme) Loss(r, sigma float64) float64 {
	r2 := r * r
	switch s {
	case Huber:
		if a := math.Abs(r); a > sigma {
			return sigma * (a - sigma/2)
		}
		return r2 / 2
	case Cauchy:
		k2 := sigma * sigma
		return k2 / 2 * math.Log1p(r2/k2)
	case GemanMcClure:
		k2 := sigma * sigma
		return k2 * r2 / (2 * (k2 + r2))
	case LeastSquare:
		fallthrough
	default:
		return r2 / 2
	}
}
