// Package teleop fuses per-frame fiducial marker observations of the
// hand-held tongs into a single smoothed wrist goal and gripper aperture.
package teleop

import (
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// TeleopGoal is the target the end-effector should track for one control
// tick. Position and orientation are in the robot base frame; Aperture is
// the normalized gripper opening in [0, 1]. Valid is false while marker
// tracking has been lost beyond the configured threshold, in which case the
// position, orientation, and aperture hold their last-known-good values.
type TeleopGoal struct {
	Position    r3.Vector
	Orientation quat.Number
	Aperture    float64
	Valid       bool
	Time        time.Time
}
