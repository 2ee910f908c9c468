package teleop

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/viam-labs/dex-teleop/spatialmath"
)

// lowPass is a first-order exponential filter with time constant tau. The
// first sample after construction or Reset seeds the state directly.
type lowPass struct {
	tau         float64 // seconds
	initialized bool
	y           float64
}

func (f *lowPass) Reset() {
	f.initialized = false
}

func (f *lowPass) Next(x float64, dt time.Duration) float64 {
	if !f.initialized {
		f.initialized = true
		f.y = x
		return f.y
	}
	f.y += smoothingCoeff(f.tau, dt) * (x - f.y)
	return f.y
}

// vectorLowPass filters each axis of a vector independently.
type vectorLowPass struct {
	x, y, z lowPass
}

func newVectorLowPass(tau float64) *vectorLowPass {
	return &vectorLowPass{lowPass{tau: tau}, lowPass{tau: tau}, lowPass{tau: tau}}
}

func (f *vectorLowPass) Reset() {
	f.x.Reset()
	f.y.Reset()
	f.z.Reset()
}

func (f *vectorLowPass) Next(v r3.Vector, dt time.Duration) r3.Vector {
	return r3.Vector{X: f.x.Next(v.X, dt), Y: f.y.Next(v.Y, dt), Z: f.z.Next(v.Z, dt)}
}

// slerpFilter smooths an orientation by slerping the state toward each new
// target, which stays continuous where per-angle filtering would not.
type slerpFilter struct {
	tau         float64
	initialized bool
	q           quat.Number
}

func (f *slerpFilter) Reset() {
	f.initialized = false
}

func (f *slerpFilter) Next(target quat.Number, dt time.Duration) quat.Number {
	if !f.initialized {
		f.initialized = true
		f.q = spatialmath.Normalize(target)
		return f.q
	}
	f.q = spatialmath.Slerp(f.q, target, smoothingCoeff(f.tau, dt))
	return f.q
}

// smoothingCoeff converts a time constant into the per-step blend amount so
// smoothing strength is independent of the tick rate. A zero time constant
// passes samples through unfiltered.
func smoothingCoeff(tau float64, dt time.Duration) float64 {
	if tau <= 0 {
		return 1
	}
	return 1 - math.Exp(-dt.Seconds()/tau)
}
