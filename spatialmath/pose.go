package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a position and orientation in 3D space.
type Pose struct {
	Point       r3.Vector
	Orientation quat.Number
}

// NewZeroPose returns a pose at the origin with no rotation.
func NewZeroPose() Pose {
	return Pose{Orientation: NewZeroOrientation()}
}

// NewPose returns a pose with the given position and orientation.
func NewPose(pt r3.Vector, o quat.Number) Pose {
	return Pose{Point: pt, Orientation: Normalize(o)}
}

// PoseAlmostCoincident returns whether two poses are within linTol meters
// and a small orientation tolerance of each other.
func PoseAlmostCoincident(a, b Pose, linTol float64) bool {
	return a.Point.Sub(b.Point).Norm() <= linTol &&
		QuaternionAlmostEqual(a.Orientation, b.Orientation, 1e-5)
}

// RigidTransform is a fixed rotation-then-translation mapping between two
// frames, e.g. the camera frame and the robot base frame.
type RigidTransform struct {
	Rotation    quat.Number
	Translation r3.Vector
}

// NewZeroRigidTransform returns the identity transform.
func NewZeroRigidTransform() RigidTransform {
	return RigidTransform{Rotation: NewZeroOrientation()}
}

// TransformPoint maps a point from the source frame into the destination
// frame.
func (t RigidTransform) TransformPoint(v r3.Vector) r3.Vector {
	return Rotate(t.Rotation, v).Add(t.Translation)
}

// TransformOrientation maps an orientation from the source frame into the
// destination frame.
func (t RigidTransform) TransformOrientation(q quat.Number) quat.Number {
	return Normalize(quat.Mul(t.Rotation, q))
}

// TransformPose maps a pose from the source frame into the destination frame.
func (t RigidTransform) TransformPose(p Pose) Pose {
	return Pose{
		Point:       t.TransformPoint(p.Point),
		Orientation: t.TransformOrientation(p.Orientation),
	}
}

// Inverse returns the transform mapping in the opposite direction.
func (t RigidTransform) Inverse() RigidTransform {
	inv := quat.Conj(Normalize(t.Rotation))
	return RigidTransform{
		Rotation:    inv,
		Translation: Rotate(inv, t.Translation.Mul(-1)),
	}
}
