package teleop

import (
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/viam-labs/dex-teleop/calibration"
	"github.com/viam-labs/dex-teleop/config"
	"github.com/viam-labs/dex-teleop/spatialmath"
	"github.com/viam-labs/dex-teleop/vision"
)

// Generator turns raw tong marker observations into smoothed teleoperation
// goals. It owns all smoothing and loss-of-track state and is driven by the
// single control goroutine; it is not safe for concurrent use.
type Generator struct {
	cfg    *config.Config
	calib  *calibration.Calibration
	logger golog.Logger

	// Marker role assignment, resolved once. Mirrored mode swaps the ids
	// so a left-handed operator can hold the tongs naturally.
	leftID  int
	rightID int

	posFilter *vectorLowPass
	oriFilter *slerpFilter
	apFilter  *lowPass

	leftMisses  int
	rightMisses int
	lost        bool
	haveGoal    bool

	// Last raw two-marker solution, used for degraded single-marker mode
	// and held while tracking is lost.
	heldPosition    r3.Vector
	heldOrientation quat.Number
	heldAperture    float64
	tongAxis        r3.Vector // unit vector from left tong to right tong
	tongDist        float64
}

// NewGenerator returns a goal generator for one teleoperation session.
func NewGenerator(cfg *config.Config, calib *calibration.Calibration, logger golog.Logger) *Generator {
	leftID, rightID := cfg.LeftTongID, cfg.RightTongID
	if cfg.Mirrored {
		leftID, rightID = rightID, leftID
	}
	return &Generator{
		cfg:       cfg,
		calib:     calib,
		logger:    logger,
		leftID:    leftID,
		rightID:   rightID,
		posFilter: newVectorLowPass(cfg.PositionSmoothingTau),
		oriFilter: &slerpFilter{tau: cfg.OrientationSmoothingTau},
		apFilter:  &lowPass{tau: cfg.ApertureSmoothingTau},
	}
}

// Update folds the current frame's observations into the goal. It is called
// exactly once per control tick; set may be nil when no frame has arrived
// yet, and stale frames are treated as if their markers were absent.
func (g *Generator) Update(set *vision.ObservationSet, now time.Time, dt time.Duration) TeleopGoal {
	var left, right vision.MarkerObservation
	var haveLeft, haveRight bool
	if set != nil && !set.StaleBy(now, g.cfg.FrameStaleAfter) {
		left, haveLeft = set.Get(g.leftID)
		right, haveRight = set.Get(g.rightID)
	}

	g.countMisses(haveLeft, haveRight)

	switch {
	case haveLeft && haveRight:
		g.fuseBoth(left, right)
	case haveLeft && g.haveGoal:
		g.fuseSingle(left, false)
	case haveRight && g.haveGoal:
		g.fuseSingle(right, true)
	default:
		// Neither tong usable: held values stay as they are.
	}

	bothLost := g.leftMisses > g.cfg.LostTickThreshold && g.rightMisses > g.cfg.LostTickThreshold
	if bothLost && !g.lost {
		g.lost = true
		g.logger.Warnw("tong tracking lost; holding last goal",
			"missed_ticks", g.cfg.LostTickThreshold)
	} else if !bothLost && g.lost && (haveLeft || haveRight) {
		g.lost = false
		g.logger.Infow("tong tracking reacquired; converging to new goal")
	}

	if !g.haveGoal {
		return TeleopGoal{Orientation: spatialmath.NewZeroOrientation(), Time: now}
	}

	return TeleopGoal{
		Position:    g.posFilter.Next(g.heldPosition, dt),
		Orientation: g.oriFilter.Next(g.heldOrientation, dt),
		Aperture:    g.apFilter.Next(g.heldAperture, dt),
		Valid:       !bothLost,
		Time:        now,
	}
}

func (g *Generator) countMisses(haveLeft, haveRight bool) {
	if haveLeft {
		g.leftMisses = 0
	} else {
		g.leftMisses++
	}
	if haveRight {
		g.rightMisses = 0
	} else {
		g.rightMisses++
	}
}

// fuseBoth computes the raw wrist goal from a full two-tong sighting:
// translation tracks the midpoint of the tongs, rotation tracks the line
// between them and their shared grip normal, and the aperture is the
// normalized inter-tong distance.
func (g *Generator) fuseBoth(left, right vision.MarkerObservation) {
	toBase := g.calib.CameraToBase
	l := toBase.TransformPoint(left.Position)
	r := toBase.TransformPoint(right.Position)

	span := r.Sub(l)
	dist := span.Norm()
	if dist < 1e-6 {
		// Overlapping detections carry no orientation information.
		return
	}
	axis := span.Mul(1 / dist)

	// Grip normal: the average of the two marker normals, projected
	// orthogonal to the inter-tong axis.
	nl := spatialmath.Rotate(toBase.TransformOrientation(left.Orientation), r3.Vector{Z: 1})
	nr := spatialmath.Rotate(toBase.TransformOrientation(right.Orientation), r3.Vector{Z: 1})
	normal := nl.Add(nr)
	normal = normal.Sub(axis.Mul(normal.Dot(axis)))
	if normal.Norm() < 1e-6 {
		// Degenerate grip normal; fall back to gravity.
		normal = r3.Vector{Z: 1}.Sub(axis.Mul(axis.Z))
	}
	bz := normal.Normalize()
	by := axis
	bx := by.Cross(bz)

	g.heldPosition = l.Add(r).Mul(0.5)
	g.heldOrientation = spatialmath.QuaternionFromBasis(bx, by, bz)
	g.heldAperture = g.calib.Aperture(dist)
	g.tongAxis = axis
	g.tongDist = dist
	g.haveGoal = true
}

// fuseSingle handles the degraded one-tong mode: the goal position follows
// the visible tong offset by half the last known inter-tong span, while
// orientation and aperture hold their last two-tong values.
func (g *Generator) fuseSingle(obs vision.MarkerObservation, isRight bool) {
	pt := g.calib.CameraToBase.TransformPoint(obs.Position)
	offset := g.tongAxis.Mul(g.tongDist / 2)
	if isRight {
		g.heldPosition = pt.Sub(offset)
	} else {
		g.heldPosition = pt.Add(offset)
	}
}
