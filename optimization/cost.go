package optimization

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/odometry/spatialmath"
)

// Cost is a vector of residuals depending on a parameter vector.
type Cost interface {
	NumParams() int
	NumResiduals() int
	Residuals(params []float64) []float64
	// Jacobian returns the NumResiduals x NumParams derivative of the residuals.
	Jacobian(params []float64) *mat.Dense
}

// PointToPlaneCost measures how far transformed target points lie from the planes of their
// matched reference points: r_i = n_i · (T(params)·p_i - q_i).
type PointToPlaneCost struct {
	Pose      spatialmath.PoseRepresentation
	Reference []r3.Vector
	Normals   []r3.Vector
	Target    []r3.Vector
}

// NewPointToPlaneCost checks that the three correspondence arrays line up.
func NewPointToPlaneCost(pose spatialmath.PoseRepresentation, reference, target, normals []r3.Vector) (*PointToPlaneCost, error) {
	if len(reference) != len(target) || len(reference) != len(normals) {
		return nil, errors.Errorf("correspondence arrays differ in length: %d reference, %d target, %d normals",
			len(reference), len(target), len(normals))
	}
	return &PointToPlaneCost{Pose: pose, Reference: reference, Normals: normals, Target: target}, nil
}

// NumParams returns the number of pose parameters.
func (c *PointToPlaneCost) NumParams() int {
	return c.Pose.NumParams()
}

// NumResiduals returns the number of correspondences.
func (c *PointToPlaneCost) NumResiduals() int {
	return len(c.Reference)
}

// Residuals returns the signed point to plane distances.
func (c *PointToPlaneCost) Residuals(params []float64) []float64 {
	tf := c.Pose.BuildMatrix(params)
	out := make([]float64, len(c.Target))
	for i, p := range c.Target {
		out[i] = c.Normals[i].Dot(tf.Apply(p).Sub(c.Reference[i]))
	}
	return out
}

// Jacobian returns n_iᵀ · d(T·p_i)/d(params) for every correspondence.
func (c *PointToPlaneCost) Jacobian(params []float64) *mat.Dense {
	numParams := c.Pose.NumParams()
	jac := mat.NewDense(len(c.Target), numParams, nil)
	for i, p := range c.Target {
		pj := c.Pose.PointJacobian(params, p)
		n := c.Normals[i]
		for j := 0; j < numParams; j++ {
			jac.Set(i, j, n.X*pj[0][j]+n.Y*pj[1][j]+n.Z*pj[2][j])
		}
	}
	return jac
}
