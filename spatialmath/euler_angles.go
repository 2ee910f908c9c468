package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// EulerAngles are the rotation angles of the fixed ZYX decomposition
// R = Rz(Yaw) * Ry(Pitch) * Rx(Roll), in radians.
type EulerAngles struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// NewEulerAngles creates an empty EulerAngles struct.
func NewEulerAngles() *EulerAngles {
	return &EulerAngles{}
}

// Quaternion returns the orientation in quaternion representation.
func (ea *EulerAngles) Quaternion() quat.Number {
	cy := math.Cos(ea.Yaw / 2)
	sy := math.Sin(ea.Yaw / 2)
	cp := math.Cos(ea.Pitch / 2)
	sp := math.Sin(ea.Pitch / 2)
	cr := math.Cos(ea.Roll / 2)
	sr := math.Sin(ea.Roll / 2)

	return quat.Number{
		Real: cy*cp*cr + sy*sp*sr,
		Imag: cy*cp*sr - sy*sp*cr,
		Jmag: sy*cp*sr + cy*sp*cr,
		Kmag: sy*cp*cr - cy*sp*sr,
	}
}

// EulerAnglesFromQuaternion extracts the ZYX Euler angles of q. At gimbal
// lock (|pitch| = π/2) the roll/yaw split is degenerate; roll is reported as
// zero and the full twist is assigned to yaw. Callers that need continuity
// through the lock must hold their own previous split (see kinematics).
func EulerAnglesFromQuaternion(q quat.Number) *EulerAngles {
	m := RotationMatrix(q)
	ea := &EulerAngles{}
	// cos(pitch) scaled hypot of the first column.
	cp := math.Hypot(m[0], m[3])
	ea.Pitch = math.Atan2(-m[6], cp)
	if cp < 1e-10 {
		ea.Roll = 0
		ea.Yaw = math.Atan2(-m[1], m[4])
		return ea
	}
	ea.Yaw = math.Atan2(m[3], m[0])
	ea.Roll = math.Atan2(m[7], m[8])
	return ea
}
