package kinematics

import (
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/dex-teleop/spatialmath"
)

func apertureFor(m *Model, gripper float64) float64 {
	return (gripper - m.Gripper.Min) / (m.Gripper.Max - m.Gripper.Min)
}

func TestForwardInverseRoundTrip(t *testing.T) {
	logger := golog.NewTestLogger(t)
	m := DefaultModel()

	for _, jp := range []JointPositions{
		{Lift: 0.5, Extension: 0.2, WristYaw: 0, WristPitch: 0, WristRoll: 0, Gripper: 0.1},
		{Lift: 0.1, Extension: 0.5, WristYaw: 1.2, WristPitch: -0.8, WristRoll: 0.7, Gripper: -0.2},
		{Lift: 1.0, Extension: 0.0, WristYaw: -1.5, WristPitch: 0.5, WristRoll: -2.5, Gripper: 0.16},
		{Lift: 0.8, Extension: 0.3, WristYaw: 3.5, WristPitch: -1.3, WristRoll: 2.8, Gripper: 0.0},
	} {
		solver := NewSolver(m, logger)
		got := solver.Inverse(Forward(m, jp), apertureFor(m, jp.Gripper))
		test.That(t, got.Reachable, test.ShouldBeTrue)
		test.That(t, got.Lift, test.ShouldAlmostEqual, jp.Lift, 1e-9)
		test.That(t, got.Extension, test.ShouldAlmostEqual, jp.Extension, 1e-9)
		test.That(t, got.WristYaw, test.ShouldAlmostEqual, jp.WristYaw, 1e-9)
		test.That(t, got.WristPitch, test.ShouldAlmostEqual, jp.WristPitch, 1e-9)
		test.That(t, got.WristRoll, test.ShouldAlmostEqual, jp.WristRoll, 1e-9)
		test.That(t, got.Gripper, test.ShouldAlmostEqual, jp.Gripper, 1e-9)
	}
}

func TestInverseClampsToLimits(t *testing.T) {
	logger := golog.NewTestLogger(t)
	m := DefaultModel()
	solver := NewSolver(m, logger)

	// Half a meter beyond maximum extension.
	target := Forward(m, JointPositions{Lift: 0.5, Extension: m.Extension.Max})
	target.Point.X += 0.5
	got := solver.Inverse(target, 0.5)
	test.That(t, got.Reachable, test.ShouldBeFalse)
	test.That(t, got.Extension, test.ShouldEqual, m.Extension.Max)
	// Lift and orientation still solved normally.
	test.That(t, got.Lift, test.ShouldAlmostEqual, 0.5, 1e-9)
	test.That(t, got.WristPitch, test.ShouldAlmostEqual, 0, 1e-9)

	// Below the lift's floor.
	target = Forward(m, JointPositions{Lift: 0.5})
	target.Point.Z -= 2.0
	got = solver.Inverse(target, 0.5)
	test.That(t, got.Reachable, test.ShouldBeFalse)
	test.That(t, got.Lift, test.ShouldEqual, m.Lift.Min)

	// Every returned value lies inside the limits regardless of target.
	for _, v := range []struct {
		val float64
		lim Limit
	}{
		{got.Lift, m.Lift},
		{got.Extension, m.Extension},
		{got.WristYaw, m.WristYaw},
		{got.WristPitch, m.WristPitch},
		{got.WristRoll, m.WristRoll},
		{got.Gripper, m.Gripper},
	} {
		test.That(t, v.lim.Contains(v.val), test.ShouldBeTrue)
	}
}

func TestInverseGripperAperture(t *testing.T) {
	logger := golog.NewTestLogger(t)
	m := DefaultModel()
	solver := NewSolver(m, logger)
	pose := Forward(m, JointPositions{Lift: 0.5, Extension: 0.1})

	test.That(t, solver.Inverse(pose, 0).Gripper, test.ShouldAlmostEqual, m.Gripper.Min, 1e-9)
	test.That(t, solver.Inverse(pose, 1).Gripper, test.ShouldAlmostEqual, m.Gripper.Max, 1e-9)
	// Out-of-range apertures clamp rather than overdrive the gripper.
	test.That(t, solver.Inverse(pose, -2).Gripper, test.ShouldAlmostEqual, m.Gripper.Min, 1e-9)
	test.That(t, solver.Inverse(pose, 3).Gripper, test.ShouldAlmostEqual, m.Gripper.Max, 1e-9)
}

func TestSingularPitchContinuity(t *testing.T) {
	logger := golog.NewTestLogger(t)
	m := DefaultModel()
	solver := NewSolver(m, logger)

	poseAt := func(pitch float64) spatialmath.Pose {
		ea := spatialmath.EulerAngles{Roll: 0.3, Pitch: pitch, Yaw: 0.5}
		return spatialmath.NewPose(r3.Vector{X: 0.4, Z: 0.6}, ea.Quaternion())
	}

	// Establish a roll/yaw split away from the singularity.
	first := solver.Inverse(poseAt(-1.40), 0.5)
	test.That(t, first.WristYaw, test.ShouldAlmostEqual, 0.5, 1e-9)
	test.That(t, first.WristRoll, test.ShouldAlmostEqual, 0.3, 1e-9)

	// Crossing pitch through -90°: roll/yaw must stay continuous instead
	// of jumping by π as a naive extraction would.
	before := solver.Inverse(poseAt(-89.9*math.Pi/180), 0.5)
	after := solver.Inverse(poseAt(-90.1*math.Pi/180), 0.5)
	test.That(t, math.Abs(before.WristYaw-first.WristYaw), test.ShouldBeLessThan, 0.1)
	test.That(t, math.Abs(after.WristYaw-before.WristYaw), test.ShouldBeLessThan, 0.1)
	test.That(t, math.Abs(after.WristRoll-before.WristRoll), test.ShouldBeLessThan, 0.1)
}

func TestModelValidate(t *testing.T) {
	m := DefaultModel()
	test.That(t, m.Validate(), test.ShouldBeNil)

	bad := DefaultModel()
	bad.Lift = Limit{Min: 1, Max: 0}
	err := bad.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "lift")
}

func TestJointPositionsValues(t *testing.T) {
	jp := JointPositions{Lift: 1, Extension: 2, WristYaw: 3, WristPitch: 4, WristRoll: 5, Gripper: 6}
	vals := jp.Values()
	test.That(t, vals, test.ShouldResemble, []float64{1, 2, 3, 4, 5, 6})

	var back JointPositions
	back.SetValues(vals)
	test.That(t, back, test.ShouldResemble, jp)
}
