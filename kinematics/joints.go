// Package kinematics implements closed-form forward and inverse kinematics
// for a mobile manipulator with a vertical lift, a telescoping horizontal
// arm, and a yaw-pitch-roll wrist carrying a gripper.
package kinematics

import "time"

// Joint names, in command order.
const (
	JointLift       = "lift"
	JointExtension  = "arm_extension"
	JointWristYaw   = "wrist_yaw"
	JointWristPitch = "wrist_pitch"
	JointWristRoll  = "wrist_roll"
	JointGripper    = "gripper"
)

// JointNames lists every joint in the fixed command order used by
// Values/SetValues.
func JointNames() []string {
	return []string{JointLift, JointExtension, JointWristYaw, JointWristPitch, JointWristRoll, JointGripper}
}

// JointPositions holds one value per joint. Lift and Extension are meters,
// the wrist joints are radians, Gripper is in the gripper joint's native
// range.
type JointPositions struct {
	Lift       float64 `json:"lift"`
	Extension  float64 `json:"arm_extension"`
	WristYaw   float64 `json:"wrist_yaw"`
	WristPitch float64 `json:"wrist_pitch"`
	WristRoll  float64 `json:"wrist_roll"`
	Gripper    float64 `json:"gripper"`
}

// Values returns the joint values in the fixed command order.
func (jp JointPositions) Values() []float64 {
	return []float64{jp.Lift, jp.Extension, jp.WristYaw, jp.WristPitch, jp.WristRoll, jp.Gripper}
}

// SetValues assigns joint values from the fixed command order. Extra values
// are ignored, missing values leave the field untouched.
func (jp *JointPositions) SetValues(vals []float64) {
	fields := []*float64{&jp.Lift, &jp.Extension, &jp.WristYaw, &jp.WristPitch, &jp.WristRoll, &jp.Gripper}
	for i, f := range fields {
		if i >= len(vals) {
			return
		}
		*f = vals[i]
	}
}

// JointState is the measured state of the arm at one instant, refreshed from
// actuator telemetry every control tick.
type JointState struct {
	Positions  JointPositions `json:"positions"`
	Velocities JointPositions `json:"velocities"`
	Time       time.Time      `json:"time"`
}

// JointTarget is a commanded joint configuration. Reachable is false iff at
// least one joint value had to be clamped to its limit during solving.
type JointTarget struct {
	JointPositions
	Reachable bool `json:"reachable"`
}
