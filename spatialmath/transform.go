// Package spatialmath defines rigid transforms and the parameterizations used to optimize them.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Transform is a rigid transform: a rotation followed by a translation.
type Transform struct {
	Rotation    RotationMatrix
	Translation r3.Vector
}

// NewIdentityTransform returns the transform that does nothing.
func NewIdentityTransform() Transform {
	return Transform{Rotation: NewIdentityRotationMatrix()}
}

// NewTransformFromQuat builds a transform from a rotation quaternion and a translation.
func NewTransformFromQuat(q quat.Number, translation r3.Vector) Transform {
	return Transform{Rotation: QuatToRotationMatrix(q), Translation: translation}
}

// NewTransformFromMatrix reads a 4x4 homogeneous matrix. The rotation block is taken as is;
// callers are responsible for handing in a valid rigid transform.
func NewTransformFromMatrix(m mat.Matrix) (Transform, error) {
	if r, c := m.Dims(); r != 4 || c != 4 {
		return Transform{}, errors.Errorf("expected a 4x4 homogeneous matrix but got %dx%d", r, c)
	}
	var tf Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			tf.Rotation[3*i+j] = m.At(i, j)
		}
	}
	tf.Translation = r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}
	return tf, nil
}

// Matrix returns the 4x4 homogeneous matrix of the transform.
func (tf Transform) Matrix() *mat.Dense {
	r := tf.Rotation
	t := tf.Translation
	return mat.NewDense(4, 4, []float64{
		r[0], r[1], r[2], t.X,
		r[3], r[4], r[5], t.Y,
		r[6], r[7], r[8], t.Z,
		0, 0, 0, 1,
	})
}

// Apply transforms a single point.
func (tf Transform) Apply(p r3.Vector) r3.Vector {
	return tf.Rotation.Apply(p).Add(tf.Translation)
}

// Quaternion returns the rotation part as a unit quaternion.
func (tf Transform) Quaternion() quat.Number {
	return tf.Rotation.Quaternion()
}

// RotationAngle returns the magnitude in radians of the rotation part.
func (tf Transform) RotationAngle() float64 {
	return tf.Rotation.Angle()
}

// IsFinite reports whether every entry of the transform is a finite number.
func (tf Transform) IsFinite() bool {
	for _, v := range tf.Rotation {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	t := tf.Translation
	for _, v := range []float64{t.X, t.Y, t.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Compose returns a·b, the transform that applies b first and then a.
func Compose(a, b Transform) Transform {
	return Transform{
		Rotation:    a.Rotation.Mul(b.Rotation),
		Translation: a.Rotation.Apply(b.Translation).Add(a.Translation),
	}
}

// Inverse returns the inverse of a rigid transform.
func Inverse(tf Transform) Transform {
	rt := tf.Rotation.Transpose()
	return Transform{Rotation: rt, Translation: rt.Apply(tf.Translation).Mul(-1)}
}

// ApplyTransformation returns a new slice holding every point transformed by tf.
func ApplyTransformation(points []r3.Vector, tf Transform) []r3.Vector {
	out := make([]r3.Vector, len(points))
	for i, p := range points {
		out[i] = tf.Apply(p)
	}
	return out
}

// TransformAlmostEqual reports whether every entry of the two homogeneous matrices differs by
// less than epsilon.
func TransformAlmostEqual(a, b Transform, epsilon float64) bool {
	for i := range a.Rotation {
		if math.Abs(a.Rotation[i]-b.Rotation[i]) >= epsilon {
			return false
		}
	}
	return a.Translation.Sub(b.Translation).Norm() < epsilon
}
