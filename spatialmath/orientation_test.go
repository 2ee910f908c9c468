package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestEulerRoundTrip(t *testing.T) {
	for _, ea := range []EulerAngles{
		{0, 0, 0},
		{0.3, -0.2, 1.1},
		{-1.2, 0.4, -2.9},
		{2.8, -1.4, 0.05},
		{0.1, 1.45, -3.0},
	} {
		got := EulerAnglesFromQuaternion(ea.Quaternion())
		test.That(t, got.Roll, test.ShouldAlmostEqual, ea.Roll, 1e-9)
		test.That(t, got.Pitch, test.ShouldAlmostEqual, ea.Pitch, 1e-9)
		test.That(t, got.Yaw, test.ShouldAlmostEqual, ea.Yaw, 1e-9)
	}
}

func TestEulerGimbalLock(t *testing.T) {
	// At pitch = π/2 only the roll/yaw sum is observable; extraction
	// reports zero roll and assigns the twist to yaw.
	ea := EulerAngles{Roll: 0.4, Pitch: math.Pi / 2, Yaw: 0.3}
	got := EulerAnglesFromQuaternion(ea.Quaternion())
	test.That(t, got.Roll, test.ShouldEqual, 0.0)
	test.That(t, got.Pitch, test.ShouldAlmostEqual, math.Pi/2, 1e-9)
	// The recovered quaternion still matches the original orientation.
	test.That(t, QuaternionAlmostEqual(got.Quaternion(), ea.Quaternion(), 1e-9), test.ShouldBeTrue)
}

func TestRotate(t *testing.T) {
	// 90 degrees about z maps x onto y.
	q := (&EulerAngles{Yaw: math.Pi / 2}).Quaternion()
	v := Rotate(q, r3.Vector{X: 1})
	test.That(t, v.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, v.Y, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, v.Z, test.ShouldAlmostEqual, 0, 1e-12)
}

func TestSlerp(t *testing.T) {
	q1 := NewZeroOrientation()
	q2 := (&EulerAngles{Yaw: math.Pi / 2}).Quaternion()

	half := Slerp(q1, q2, 0.5)
	ea := EulerAnglesFromQuaternion(half)
	test.That(t, ea.Yaw, test.ShouldAlmostEqual, math.Pi/4, 1e-9)

	test.That(t, QuaternionAlmostEqual(Slerp(q1, q2, 0), q1, 1e-9), test.ShouldBeTrue)
	test.That(t, QuaternionAlmostEqual(Slerp(q1, q2, 1), q2, 1e-9), test.ShouldBeTrue)

	// Shorter arc: slerping toward -q2 lands on the same orientation.
	negQ2 := quat.Scale(-1, q2)
	test.That(t, QuaternionAlmostEqual(Slerp(q1, negQ2, 1), q2, 1e-9), test.ShouldBeTrue)
}

func TestQuaternionFromBasis(t *testing.T) {
	// Identity basis.
	q := QuaternionFromBasis(r3.Vector{X: 1}, r3.Vector{Y: 1}, r3.Vector{Z: 1})
	test.That(t, QuaternionAlmostEqual(q, NewZeroOrientation(), 1e-9), test.ShouldBeTrue)

	// Swap x into y: a 90 degree yaw.
	q = QuaternionFromBasis(r3.Vector{Y: 1}, r3.Vector{X: -1}, r3.Vector{Z: 1})
	ea := EulerAnglesFromQuaternion(q)
	test.That(t, ea.Yaw, test.ShouldAlmostEqual, math.Pi/2, 1e-9)
}

func TestRigidTransform(t *testing.T) {
	tr := RigidTransform{
		Rotation:    (&EulerAngles{Yaw: math.Pi / 2}).Quaternion(),
		Translation: r3.Vector{X: 1, Y: 2, Z: 3},
	}
	p := tr.TransformPoint(r3.Vector{X: 1})
	test.That(t, p.X, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, p.Y, test.ShouldAlmostEqual, 3, 1e-12)
	test.That(t, p.Z, test.ShouldAlmostEqual, 3, 1e-12)

	// Round trip through the inverse.
	back := tr.Inverse().TransformPoint(p)
	test.That(t, back.Sub(r3.Vector{X: 1}).Norm(), test.ShouldAlmostEqual, 0, 1e-12)
}
