package kinematics

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/viam-labs/dex-teleop/spatialmath"
	"github.com/viam-labs/dex-teleop/utils"
)

// singularityEps is the threshold on |cos(pitch)|, the denominator of the
// roll/yaw extraction, below which the wrist is treated as singular.
const singularityEps = 0.01

// Forward computes the wrist pose for a set of joint values. Pure function
// of the joint values and the model.
func Forward(m *Model, jp JointPositions) spatialmath.Pose {
	pt := m.MastOffset.
		Add(r3.Vector{X: m.ArmRetractedLength + jp.Extension}).
		Add(r3.Vector{Z: jp.Lift})
	ea := spatialmath.EulerAngles{Roll: jp.WristRoll, Pitch: jp.WristPitch, Yaw: jp.WristYaw}
	return spatialmath.NewPose(pt, ea.Quaternion())
}

// Solver solves wrist goals into joint targets for one arm. It keeps the
// previous wrist solution so the roll/yaw split can be held through
// singularities and so extracted angles stay continuous across ticks. It is
// driven by a single control goroutine and is not safe for concurrent use.
type Solver struct {
	model      *Model
	logger     golog.Logger
	groundMode bool

	prevWrist     *JointPositions
	inSingularity bool
}

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithGroundMode biases lift targets downward by the model's ground lift
// offset, for manipulating objects at floor level.
func WithGroundMode() SolverOption {
	return func(s *Solver) {
		s.groundMode = true
	}
}

// NewSolver returns a solver for the given model.
func NewSolver(model *Model, logger golog.Logger, opts ...SolverOption) *Solver {
	s := &Solver{model: model, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Forward computes the wrist pose for a measured joint state.
func (s *Solver) Forward(js JointState) spatialmath.Pose {
	return Forward(s.model, js.Positions)
}

// Inverse solves a wrist goal pose and a normalized gripper aperture into a
// joint target. Values outside the model's limits are clamped to the nearest
// limit and the target's Reachable flag is set false; the call itself never
// fails. Near the wrist singularity (pitch at ±90°) the previous roll/yaw
// split is held instead of dividing by a vanishing term.
func (s *Solver) Inverse(pose spatialmath.Pose, aperture float64) JointTarget {
	m := s.model

	lift := pose.Point.Z - m.MastOffset.Z
	if s.groundMode {
		lift -= m.GroundLiftOffset
	}
	extension := pose.Point.X - m.MastOffset.X - m.ArmRetractedLength

	yaw, pitch, roll := s.solveWrist(pose.Orientation)

	aperture = utils.Clamp(aperture, 0, 1)
	gripper := m.Gripper.Min + aperture*(m.Gripper.Max-m.Gripper.Min)

	raw := JointPositions{
		Lift:       lift,
		Extension:  extension,
		WristYaw:   yaw,
		WristPitch: pitch,
		WristRoll:  roll,
		Gripper:    gripper,
	}
	clamped, changed := m.ClampToLimits(raw)
	s.prevWrist = &JointPositions{
		WristYaw:   clamped.WristYaw,
		WristPitch: clamped.WristPitch,
		WristRoll:  clamped.WristRoll,
	}
	return JointTarget{JointPositions: clamped, Reachable: !changed}
}

// solveWrist extracts the yaw-pitch-roll decomposition of the goal
// orientation, holding the previous roll/yaw split in the singular region
// and unwrapping angles against the previous tick.
func (s *Solver) solveWrist(q quat.Number) (yaw, pitch, roll float64) {
	rm := spatialmath.RotationMatrix(q)
	// |cos(pitch)|, the denominator of the roll and yaw extraction.
	cp := math.Hypot(rm[0], rm[3])
	pitch = math.Atan2(-rm[6], cp)

	if cp < singularityEps {
		if !s.inSingularity {
			s.inSingularity = true
			s.logger.Debugw("wrist entered singular region; holding roll/yaw split", "pitch", pitch)
		}
		if s.prevWrist != nil {
			return s.prevWrist.WristYaw, pitch, s.prevWrist.WristRoll
		}
		// No prior solution: put the whole twist on yaw.
		return utils.NormalizeAngle(math.Atan2(-rm[1], rm[4])), pitch, 0
	}
	if s.inSingularity {
		s.inSingularity = false
		s.logger.Debugw("wrist left singular region", "pitch", pitch)
	}

	yaw = math.Atan2(rm[3], rm[0])
	roll = math.Atan2(rm[7], rm[8])

	if s.prevWrist != nil {
		yaw = bestAngleBranch(yaw, s.prevWrist.WristYaw, s.model.WristYaw)
		roll = bestAngleBranch(roll, s.prevWrist.WristRoll, s.model.WristRoll)
	} else {
		yaw = bestAngleBranch(yaw, 0, s.model.WristYaw)
		roll = bestAngleBranch(roll, 0, s.model.WristRoll)
	}
	return yaw, pitch, roll
}

// bestAngleBranch picks among theta and its ±2π branches the value that lies
// within the joint limit, preferring the branch closest to ref. Joints with
// ranges wider than (-π, π] need this to avoid wrap oscillation between
// ticks.
func bestAngleBranch(theta, ref float64, l Limit) float64 {
	theta = utils.NormalizeAngle(theta)
	best := theta
	bestCost := math.Inf(1)
	for _, cand := range []float64{theta, theta + 2*math.Pi, theta - 2*math.Pi} {
		cost := math.Abs(cand - ref)
		if !l.Contains(cand) {
			// Out-of-limit branches only win if nothing fits.
			cost += 4 * math.Pi
		}
		if cost < bestCost {
			bestCost = cost
			best = cand
		}
	}
	return best
}
