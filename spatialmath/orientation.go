// Package spatialmath implements the pose and orientation math used by the
// teleoperation pipeline. Orientations are unit quaternions represented with
// gonum's quat.Number; positions are golang/geo r3 vectors.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// NewZeroOrientation returns an orientation which signifies no rotation.
func NewZeroOrientation() quat.Number {
	return quat.Number{Real: 1}
}

// Normalize scales a quaternion to unit norm. A zero quaternion normalizes
// to the identity rather than NaN.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return NewZeroOrientation()
	}
	return quat.Scale(1/n, q)
}

// QuaternionAlmostEqual returns whether two quaternions represent
// approximately the same orientation, treating q and -q as equal.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	d := quat.Mul(b, quat.Conj(a))
	return 1-math.Abs(d.Real) < tol
}

// OrientationBetween returns the rotation taking orientation a to b.
func OrientationBetween(a, b quat.Number) quat.Number {
	return quat.Mul(b, quat.Conj(a))
}

// Rotate rotates vector v by quaternion q.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Slerp spherically interpolates from q1 to q2 by amount t in [0, 1],
// taking the shorter arc.
func Slerp(q1, q2 quat.Number, t float64) quat.Number {
	q1 = Normalize(q1)
	q2 = Normalize(q2)

	dot := q1.Real*q2.Real + q1.Imag*q2.Imag + q1.Jmag*q2.Jmag + q1.Kmag*q2.Kmag
	if dot < 0 {
		q2 = quat.Scale(-1, q2)
		dot = -dot
	}

	// Nearly parallel quaternions: fall back to lerp to avoid dividing by
	// a vanishing sin(theta).
	if dot > 0.9995 {
		return Normalize(quat.Add(quat.Scale(1-t, q1), quat.Scale(t, q2)))
	}

	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	a := math.Sin((1-t)*theta) / sinTheta
	b := math.Sin(t*theta) / sinTheta
	return Normalize(quat.Add(quat.Scale(a, q1), quat.Scale(b, q2)))
}

// RotationMatrix returns the row-major 3x3 rotation matrix of q.
func RotationMatrix(q quat.Number) [9]float64 {
	q = Normalize(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [9]float64{
		1 - 2*y*y - 2*z*z, 2*x*y - 2*z*w, 2*x*z + 2*y*w,
		2*x*y + 2*z*w, 1 - 2*x*x - 2*z*z, 2*y*z - 2*x*w,
		2*x*z - 2*y*w, 2*y*z + 2*x*w, 1 - 2*x*x - 2*y*y,
	}
}

// QuaternionFromBasis builds the orientation whose x, y, and z axes are the
// given orthonormal vectors, i.e. the quaternion of the rotation matrix with
// those columns. The inputs must already be orthonormal.
func QuaternionFromBasis(bx, by, bz r3.Vector) quat.Number {
	// Shepperd's method on the column-matrix [bx by bz].
	m00, m01, m02 := bx.X, by.X, bz.X
	m10, m11, m12 := bx.Y, by.Y, bz.Y
	m20, m21, m22 := bx.Z, by.Z, bz.Z

	tr := m00 + m11 + m22
	var q quat.Number
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = quat.Number{
			Real: s / 4,
			Imag: (m21 - m12) / s,
			Jmag: (m02 - m20) / s,
			Kmag: (m10 - m01) / s,
		}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = quat.Number{
			Real: (m21 - m12) / s,
			Imag: s / 4,
			Jmag: (m01 + m10) / s,
			Kmag: (m02 + m20) / s,
		}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = quat.Number{
			Real: (m02 - m20) / s,
			Imag: (m01 + m10) / s,
			Jmag: s / 4,
			Kmag: (m12 + m21) / s,
		}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = quat.Number{
			Real: (m10 - m01) / s,
			Imag: (m02 + m20) / s,
			Jmag: (m12 + m21) / s,
			Kmag: s / 4,
		}
	}
	return Normalize(q)
}
