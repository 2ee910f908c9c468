package control

import (
	"math"
	"time"

	"github.com/viam-labs/dex-teleop/kinematics"
)

// limitStep clamps the per-joint change from prev to target so that no joint
// moves faster than its configured maximum velocity, scaled by the session
// speed scale, over one tick of duration dt. The second return reports whether
// any joint was limited.
func limitStep(prev, target, maxVel kinematics.JointPositions, dt time.Duration, scale float64) (kinematics.JointPositions, bool) {
	prevVals := prev.Values()
	targetVals := target.Values()
	maxVals := maxVel.Values()

	limited := false
	out := make([]float64, len(targetVals))
	for i := range out {
		step := maxVals[i] * scale * dt.Seconds()
		delta := targetVals[i] - prevVals[i]
		if math.Abs(delta) > step {
			delta = math.Copysign(step, delta)
			limited = true
		}
		out[i] = prevVals[i] + delta
	}

	var jp kinematics.JointPositions
	jp.SetValues(out)
	return jp, limited
}
