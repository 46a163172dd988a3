package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// RotationMatrix is a 3x3 rotation stored in row-major order.
type RotationMatrix [9]float64

// NewIdentityRotationMatrix returns the rotation that does nothing.
func NewIdentityRotationMatrix() RotationMatrix {
	return RotationMatrix{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// At returns the value at the given row and column.
func (rm RotationMatrix) At(row, col int) float64 {
	return rm[3*row+col]
}

// Row returns the given row as a vector.
func (rm RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm[3*row], Y: rm[3*row+1], Z: rm[3*row+2]}
}

// Col returns the given column as a vector.
func (rm RotationMatrix) Col(col int) r3.Vector {
	return r3.Vector{X: rm[col], Y: rm[3+col], Z: rm[6+col]}
}

// Mul returns rm·other.
func (rm RotationMatrix) Mul(other RotationMatrix) RotationMatrix {
	var out RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = rm[3*i]*other[j] + rm[3*i+1]*other[3+j] + rm[3*i+2]*other[6+j]
		}
	}
	return out
}

// Transpose returns the transpose, which for a rotation is also its inverse.
func (rm RotationMatrix) Transpose() RotationMatrix {
	return RotationMatrix{
		rm[0], rm[3], rm[6],
		rm[1], rm[4], rm[7],
		rm[2], rm[5], rm[8],
	}
}

// Apply rotates a vector.
func (rm RotationMatrix) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm[0]*v.X + rm[1]*v.Y + rm[2]*v.Z,
		Y: rm[3]*v.X + rm[4]*v.Y + rm[5]*v.Z,
		Z: rm[6]*v.X + rm[7]*v.Y + rm[8]*v.Z,
	}
}

// Trace returns the sum of the diagonal.
func (rm RotationMatrix) Trace() float64 {
	return rm[0] + rm[4] + rm[8]
}

// Angle returns the magnitude in radians of the rotation, in [0, pi].
func (rm RotationMatrix) Angle() float64 {
	cos := (rm.Trace() - 1) / 2
	return math.Acos(math.Max(-1, math.Min(1, cos)))
}

// Quaternion converts the rotation to a unit quaternion with a non-negative real part.
func (rm RotationMatrix) Quaternion() quat.Number {
	m00, m01, m02 := rm[0], rm[1], rm[2]
	m10, m11, m12 := rm[3], rm[4], rm[5]
	m20, m21, m22 := rm[6], rm[7], rm[8]

	var q quat.Number
	switch trace := m00 + m11 + m22; {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = quat.Number{Real: 0.25 / s, Imag: (m21 - m12) * s, Jmag: (m02 - m20) * s, Kmag: (m10 - m01) * s}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = quat.Number{Real: (m21 - m12) / s, Imag: 0.25 * s, Jmag: (m01 + m10) / s, Kmag: (m02 + m20) / s}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = quat.Number{Real: (m02 - m20) / s, Imag: (m01 + m10) / s, Jmag: 0.25 * s, Kmag: (m12 + m21) / s}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = quat.Number{Real: (m10 - m01) / s, Imag: (m02 + m20) / s, Jmag: (m12 + m21) / s, Kmag: 0.25 * s}
	}
	q = quat.Scale(1/quat.Abs(q), q)
	if q.Real < 0 {
		q = Flip(q)
	}
	return q
}

// QuatToRotationMatrix converts a quaternion to a rotation matrix. The quaternion is
// normalized first.
func QuatToRotationMatrix(q quat.Number) RotationMatrix {
	q = quat.Scale(1/quat.Abs(q), q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return RotationMatrix{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// Flip will multiply a quaternion by -1, returning a quaternion representing the same
// orientation but in the opposing octant.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

func rotX(a float64) RotationMatrix {
	s, c := math.Sincos(a)
	return RotationMatrix{1, 0, 0, 0, c, -s, 0, s, c}
}

func rotY(a float64) RotationMatrix {
	s, c := math.Sincos(a)
	return RotationMatrix{c, 0, s, 0, 1, 0, -s, 0, c}
}

func rotZ(a float64) RotationMatrix {
	s, c := math.Sincos(a)
	return RotationMatrix{c, -s, 0, s, c, 0, 0, 0, 1}
}

// Derivatives of the elementary rotations with respect to their angle. These are not
// rotations, the type is only used for its multiplication helpers.
func dRotX(a float64) RotationMatrix {
	s, c := math.Sincos(a)
	return RotationMatrix{0, 0, 0, 0, -s, -c, 0, c, -s}
}

func dRotY(a float64) RotationMatrix {
	s, c := math.Sincos(a)
	return RotationMatrix{-s, 0, c, 0, 0, 0, -c, 0, -s}
}

func dRotZ(a float64) RotationMatrix {
	s, c := math.Sincos(a)
	return RotationMatrix{-s, -c, 0, c, -s, 0, 0, 0, 0}
}
