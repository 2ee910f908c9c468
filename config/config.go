// Package config defines the single immutable configuration struct for a
// teleoperation session. It is resolved once at startup and passed by
// reference into each component's constructor; no component reads ambient
// global state.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/viam-labs/dex-teleop/kinematics"
)

// Config configures every component of the teleoperation pipeline. Each
// field affects exactly one component.
type Config struct {
	// LoopRateHz is the control loop frequency.
	LoopRateHz float64 `json:"loop_rate_hz"`

	// Marker role assignment, resolved once at startup.
	LeftTongID  int `json:"left_tong_id"`
	RightTongID int `json:"right_tong_id"`

	// Smoothing time constants for the goal generator, seconds.
	PositionSmoothingTau    float64 `json:"position_smoothing_tau_s"`
	OrientationSmoothingTau float64 `json:"orientation_smoothing_tau_s"`
	ApertureSmoothingTau    float64 `json:"aperture_smoothing_tau_s"`

	// LostTickThreshold is the number of consecutive ticks a marker may be
	// absent before it is considered lost.
	LostTickThreshold int `json:"lost_tick_threshold"`
	// FrameStaleAfter is how old a camera frame may be before its markers
	// are treated as missing.
	FrameStaleAfter time.Duration `json:"frame_stale_after"`

	// MaxJointVelocities bounds, per joint and per second, how fast
	// commands may change between ticks (units per second, matching each
	// joint's native unit).
	MaxJointVelocities kinematics.JointPositions `json:"max_joint_velocities"`

	// Operating-mode flags.
	ReducedSpeed       bool `json:"reduced_speed"`
	Mirrored           bool `json:"mirrored"`
	ManipulateOnGround bool `json:"manipulate_on_ground"`
	// SuppressUnreachable stops the loop from commanding motion toward
	// targets the solver had to clamp.
	SuppressUnreachable bool `json:"suppress_unreachable"`

	// Model is the arm's kinematic description. Nil selects the default
	// model.
	Model *kinematics.Model `json:"model,omitempty"`
}

// reducedSpeedScale is applied to the velocity bounds in reduced-speed mode.
const reducedSpeedScale = 0.5

// Default returns the stock configuration for a 30 Hz session.
func Default() *Config {
	return &Config{
		LoopRateHz:              30,
		LeftTongID:              202,
		RightTongID:             203,
		PositionSmoothingTau:    0.1,
		OrientationSmoothingTau: 0.1,
		ApertureSmoothingTau:    0.05,
		LostTickThreshold:       10,
		FrameStaleAfter:         200 * time.Millisecond,
		MaxJointVelocities: kinematics.JointPositions{
			Lift:       0.5,
			Extension:  0.4,
			WristYaw:   3.0,
			WristPitch: 3.0,
			WristRoll:  3.0,
			Gripper:    1.0,
		},
	}
}

// FromFile reads and validates a configuration from a JSON file, applying
// defaults for absent fields.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", path)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %q", path)
	}
	return cfg, nil
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if c.LoopRateHz <= 0 || c.LoopRateHz > 200 {
		return errors.New("loop_rate_hz must be in (0, 200]")
	}
	if c.LeftTongID == c.RightTongID {
		return errors.New("left_tong_id and right_tong_id must differ")
	}
	if c.PositionSmoothingTau < 0 || c.OrientationSmoothingTau < 0 || c.ApertureSmoothingTau < 0 {
		return errors.New("smoothing time constants must be non-negative")
	}
	if c.LostTickThreshold < 1 {
		return errors.New("lost_tick_threshold must be at least 1")
	}
	if c.FrameStaleAfter <= 0 {
		return errors.New("frame_stale_after must be positive")
	}
	for i, v := range c.MaxJointVelocities.Values() {
		if v <= 0 {
			return errors.Errorf("max_joint_velocities: joint %q must be positive", kinematics.JointNames()[i])
		}
	}
	if c.Model != nil {
		if err := c.Model.Validate(); err != nil {
			return errors.Wrap(err, "model")
		}
	}
	return nil
}

// KinematicModel returns the configured model, or the default one.
func (c *Config) KinematicModel() *kinematics.Model {
	if c.Model != nil {
		return c.Model
	}
	return kinematics.DefaultModel()
}

// TickPeriod returns the control loop period.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.LoopRateHz)
}

// VelocityScale is the factor applied to the per-joint velocity bounds,
// honoring reduced-speed mode.
func (c *Config) VelocityScale() float64 {
	if c.ReducedSpeed {
		return reducedSpeedScale
	}
	return 1
}
