package spatialmath

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// EulerPoseName is the name of the euler pose representation.
const EulerPoseName = "euler"

// PoseRepresentation is a minimal parameterization of a rigid transform. Optimizers work on
// the parameters; everything else works on Transforms.
type PoseRepresentation interface {
	Name() string
	NumParams() int
	// BuildMatrix converts parameters to a transform.
	BuildMatrix(params []float64) Transform
	// FromMatrix converts a transform back to parameters. BuildMatrix(FromMatrix(tf)) equals
	// tf up to numerical precision for any rigid tf.
	FromMatrix(tf Transform) []float64
	// PointJacobian returns d(T(params)·p)/d(params): one row per output coordinate, one
	// column per parameter.
	PointJacobian(params []float64, p r3.Vector) [3][]float64
	// Zero returns the parameters of the identity transform.
	Zero() []float64
}

var poseRepresentations = map[string]PoseRepresentation{
	EulerPoseName: &eulerPose{},
}

// RepresentationByName looks up a pose representation by its configured name.
func RepresentationByName(name string) (PoseRepresentation, error) {
	rep, ok := poseRepresentations[name]
	if !ok {
		names := make([]string, 0, len(poseRepresentations))
		for k := range poseRepresentations {
			names = append(names, k)
		}
		sort.Strings(names)
		return nil, errors.Errorf("unknown pose representation %q, expected one of %v", name, names)
	}
	return rep, nil
}

// eulerPose parameterizes a transform as [tx ty tz roll pitch yaw] with R = Rz(yaw)·Ry(pitch)·Rx(roll).
type eulerPose struct{}

// NewEulerPose returns the euler pose representation.
func NewEulerPose() PoseRepresentation {
	return &eulerPose{}
}

func (ep *eulerPose) Name() string {
	return EulerPoseName
}

func (ep *eulerPose) NumParams() int {
	return 6
}

func (ep *eulerPose) Zero() []float64 {
	return make([]float64, 6)
}

func (ep *eulerPose) BuildMatrix(params []float64) Transform {
	return Transform{
		Rotation:    rotZ(params[5]).Mul(rotY(params[4])).Mul(rotX(params[3])),
		Translation: r3.Vector{X: params[0], Y: params[1], Z: params[2]},
	}
}

func (ep *eulerPose) FromMatrix(tf Transform) []float64 {
	r := tf.Rotation
	sy := math.Sqrt(r.At(0, 0)*r.At(0, 0) + r.At(1, 0)*r.At(1, 0))
	var roll, pitch, yaw float64
	if sy < 1e-9 {
		// Gimbal lock, yaw is folded into roll.
		roll = math.Atan2(-r.At(1, 2), r.At(1, 1))
		pitch = math.Atan2(-r.At(2, 0), sy)
	} else {
		roll = math.Atan2(r.At(2, 1), r.At(2, 2))
		pitch = math.Atan2(-r.At(2, 0), sy)
		yaw = math.Atan2(r.At(1, 0), r.At(0, 0))
	}
	t := tf.Translation
	return []float64{t.X, t.Y, t.Z, roll, pitch, yaw}
}

func (ep *eulerPose) PointJacobian(params []float64, p r3.Vector) [3][]float64 {
	roll, pitch, yaw := params[3], params[4], params[5]
	rx, ry, rz := rotX(roll), rotY(pitch), rotZ(yaw)

	dRoll := rz.Mul(ry).Mul(dRotX(roll)).Apply(p)
	dPitch := rz.Mul(dRotY(pitch)).Mul(rx).Apply(p)
	dYaw := dRotZ(yaw).Mul(ry).Mul(rx).Apply(p)

	return [3][]float64{
		{1, 0, 0, dRoll.X, dPitch.X, dYaw.X},
		{0, 1, 0, dRoll.Y, dPitch.Y, dYaw.Y},
		{0, 0, 1, dRoll.Z, dPitch.Z, dYaw.Z},
	}
}
