package kinematics

import (
	"encoding/json"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Limit is an inclusive joint range.
type Limit struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains returns whether v lies within the limit.
func (l Limit) Contains(v float64) bool {
	return v >= l.Min && v <= l.Max
}

// Model is the static kinematic description of the arm: link offsets and
// per-joint limits. Loaded once at startup and immutable afterwards.
type Model struct {
	// MastOffset is the position of the lift carriage at zero lift,
	// relative to the robot base frame.
	MastOffset r3.Vector `json:"mast_offset"`
	// ArmRetractedLength is the horizontal distance from the mast to the
	// wrist center with the telescoping arm fully retracted.
	ArmRetractedLength float64 `json:"arm_retracted_length"`
	// GroundLiftOffset is subtracted from the lift target when the
	// ground-manipulation mode is active, biasing the workspace downward.
	GroundLiftOffset float64 `json:"ground_lift_offset"`

	Lift       Limit `json:"lift"`
	Extension  Limit `json:"arm_extension"`
	WristYaw   Limit `json:"wrist_yaw"`
	WristPitch Limit `json:"wrist_pitch"`
	WristRoll  Limit `json:"wrist_roll"`
	Gripper    Limit `json:"gripper"`
}

// DefaultModel returns a model with the stock dimensions of the supported
// arm. Meters and radians.
func DefaultModel() *Model {
	return &Model{
		MastOffset:         r3.Vector{X: 0.03, Y: 0, Z: 0.09},
		ArmRetractedLength: 0.25,
		GroundLiftOffset:   0.25,
		Lift:               Limit{Min: 0.0, Max: 1.10},
		Extension:          Limit{Min: 0.0, Max: 0.52},
		WristYaw:           Limit{Min: -1.75, Max: 4.00},
		WristPitch:         Limit{Min: -1.57, Max: 0.56},
		WristRoll:          Limit{Min: -2.92, Max: 2.92},
		Gripper:            Limit{Min: -0.35, Max: 0.165},
	}
}

// LoadModel reads and validates a model from a JSON file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read kinematic model %q", path)
	}
	m := &Model{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrapf(err, "cannot parse kinematic model %q", path)
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid kinematic model %q", path)
	}
	return m, nil
}

// Validate ensures the model can be used to command motion. An arm with
// malformed limits must never be commanded.
func (m *Model) Validate() error {
	for _, j := range []struct {
		name  string
		limit Limit
	}{
		{JointLift, m.Lift},
		{JointExtension, m.Extension},
		{JointWristYaw, m.WristYaw},
		{JointWristPitch, m.WristPitch},
		{JointWristRoll, m.WristRoll},
		{JointGripper, m.Gripper},
	} {
		if j.limit.Min > j.limit.Max {
			return errors.Errorf("joint %q has min %f greater than max %f", j.name, j.limit.Min, j.limit.Max)
		}
	}
	if m.ArmRetractedLength < 0 {
		return errors.New("arm_retracted_length must be non-negative")
	}
	if m.GroundLiftOffset < 0 {
		return errors.New("ground_lift_offset must be non-negative")
	}
	return nil
}

// Limits returns the limit for the named joint.
func (m *Model) Limits(joint string) (Limit, bool) {
	switch joint {
	case JointLift:
		return m.Lift, true
	case JointExtension:
		return m.Extension, true
	case JointWristYaw:
		return m.WristYaw, true
	case JointWristPitch:
		return m.WristPitch, true
	case JointWristRoll:
		return m.WristRoll, true
	case JointGripper:
		return m.Gripper, true
	}
	return Limit{}, false
}

// ClampToLimits clamps every joint of jp to the model's limits, returning
// the clamped positions and whether any value changed.
func (m *Model) ClampToLimits(jp JointPositions) (JointPositions, bool) {
	clamped := false
	clampOne := func(v float64, l Limit) float64 {
		if v < l.Min {
			clamped = true
			return l.Min
		}
		if v > l.Max {
			clamped = true
			return l.Max
		}
		return v
	}
	out := JointPositions{
		Lift:       clampOne(jp.Lift, m.Lift),
		Extension:  clampOne(jp.Extension, m.Extension),
		WristYaw:   clampOne(jp.WristYaw, m.WristYaw),
		WristPitch: clampOne(jp.WristPitch, m.WristPitch),
		WristRoll:  clampOne(jp.WristRoll, m.WristRoll),
		Gripper:    clampOne(jp.Gripper, m.Gripper),
	}
	return out, clamped
}
