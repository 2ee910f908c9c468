package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/viam-labs/dex-teleop/config"
	"github.com/viam-labs/dex-teleop/kinematics"
	"github.com/viam-labs/dex-teleop/spatialmath"
	"github.com/viam-labs/dex-teleop/teleop"
	"github.com/viam-labs/dex-teleop/vision"
)

// State is the control loop's lifecycle phase.
type State int

const (
	// StateInitializing waits for the first valid goal before any motion.
	StateInitializing State = iota
	// StateTracking follows a valid goal every tick.
	StateTracking
	// StateHolding keeps the last commanded position while tracking is lost.
	StateHolding
	// StateShuttingDown stops motion on the way out.
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateTracking:
		return "tracking"
	case StateHolding:
		return "holding"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// GoalSource produces one teleoperation goal per control tick.
type GoalSource interface {
	Update(set *vision.ObservationSet, now time.Time, dt time.Duration) teleop.TeleopGoal
}

// Stats counts loop scheduling behavior since Run started.
type Stats struct {
	Ticks        uint64
	Overruns     uint64
	WorstOverrun time.Duration
}

const unreachableLogInterval = 2 * time.Second

// Loop is the fixed-rate teleoperation control loop. It pulls the latest
// marker frame each tick, folds it into a goal, solves joint targets, and
// commands them to the driver with per-joint velocity limiting.
type Loop struct {
	cfg    *config.Config
	goals  GoalSource
	solver *kinematics.Solver
	frames *vision.LatestFrame
	driver Driver
	clock  clock.Clock
	logger golog.Logger

	mu    sync.Mutex
	state State
	stats Stats

	lastState          kinematics.JointState
	lastCommanded      kinematics.JointPositions
	holdSent           bool
	lastUnreachableLog time.Time
}

// NewLoop wires a control loop. A nil clk uses the wall clock.
func NewLoop(
	cfg *config.Config,
	goals GoalSource,
	solver *kinematics.Solver,
	frames *vision.LatestFrame,
	driver Driver,
	clk clock.Clock,
	logger golog.Logger,
) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		cfg:    cfg,
		goals:  goals,
		solver: solver,
		frames: frames,
		driver: driver,
		clock:  clk,
		logger: logger,
		state:  StateInitializing,
	}
}

// State reports the loop's current phase.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stats reports scheduling counters since Run started.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// JointState reports the most recent joint telemetry read by the loop.
func (l *Loop) JointState() kinematics.JointState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastState
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != s {
		l.logger.Infow("control loop state change", "from", l.state.String(), "to", s.String())
		l.state = s
	}
}

// Run executes the loop until ctx is canceled or the driver fails; a driver
// failure is fatal and returned after a best-effort stop. A canceled context
// is a normal shutdown and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	js, err := l.driver.ReadState(ctx)
	if err != nil {
		return errors.Wrap(err, "reading initial joint state")
	}
	l.mu.Lock()
	l.lastState = js
	l.lastCommanded = js.Positions
	l.mu.Unlock()
	l.logger.Infow("control loop starting",
		"rate_hz", l.cfg.LoopRateHz,
		"speed_scale", l.cfg.VelocityScale(),
	)

	period := l.cfg.TickPeriod()
	deadline := l.clock.Now().Add(period)
	for {
		if ctx.Err() != nil {
			return l.shutdown(ctx, nil)
		}

		if err := l.tick(ctx, l.clock.Now(), period); err != nil {
			return l.shutdown(ctx, err)
		}

		l.mu.Lock()
		l.stats.Ticks++
		l.mu.Unlock()

		now := l.clock.Now()
		if now.Before(deadline) {
			if !l.waitUntil(ctx, deadline.Sub(now)) {
				return l.shutdown(ctx, nil)
			}
			deadline = deadline.Add(period)
		} else {
			// Overran the tick budget: run the next tick immediately and
			// rebase the schedule rather than trying to catch up.
			over := now.Sub(deadline)
			l.mu.Lock()
			l.stats.Overruns++
			if over > l.stats.WorstOverrun {
				l.stats.WorstOverrun = over
			}
			l.mu.Unlock()
			deadline = now.Add(period)
		}
	}
}

func (l *Loop) waitUntil(ctx context.Context, d time.Duration) bool {
	timer := l.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (l *Loop) shutdown(ctx context.Context, cause error) error {
	l.setState(StateShuttingDown)
	// Stop regardless of why we are exiting; use a fresh context in case the
	// caller's is already canceled.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := l.driver.Stop(stopCtx); err != nil {
		l.logger.Errorw("stopping driver during shutdown", "error", err)
	}
	if cause != nil {
		l.logger.Errorw("control loop stopping on driver failure", "error", cause)
	}
	return cause
}

func (l *Loop) tick(ctx context.Context, now time.Time, period time.Duration) error {
	// One tick's budget bounds every driver call within it.
	ctx, cancel := context.WithTimeout(ctx, period)
	defer cancel()

	js, err := l.driver.ReadState(ctx)
	if err != nil {
		return errors.Wrap(err, "reading joint state")
	}
	l.mu.Lock()
	l.lastState = js
	l.mu.Unlock()

	var set *vision.ObservationSet
	if l.frames != nil {
		set = l.frames.Latest()
	}
	goal := l.goals.Update(set, now, period)

	if !goal.Valid {
		if l.State() == StateInitializing {
			return nil
		}
		return l.holdTick(ctx)
	}

	l.setState(StateTracking)
	l.holdSent = false

	target := l.solver.Inverse(spatialmath.NewPose(goal.Position, goal.Orientation), goal.Aperture)
	if !target.Reachable && l.cfg.SuppressUnreachable {
		if now.Sub(l.lastUnreachableLog) >= unreachableLogInterval {
			l.lastUnreachableLog = now
			l.logger.Warnw("goal outside joint limits; suppressing command", "target", target.JointPositions)
		}
		return nil
	}

	limited, _ := limitStep(l.lastCommanded, target.JointPositions, l.cfg.MaxJointVelocities, period, l.cfg.VelocityScale())
	if err := l.driver.Command(ctx, kinematics.JointTarget{JointPositions: limited, Reachable: target.Reachable}); err != nil {
		return errors.Wrap(err, "commanding joint target")
	}
	l.mu.Lock()
	l.lastCommanded = limited
	l.mu.Unlock()
	return nil
}

// holdTick commands the last target exactly once when tracking drops out,
// then stays quiet until tracking resumes.
func (l *Loop) holdTick(ctx context.Context) error {
	l.setState(StateHolding)
	if l.holdSent {
		return nil
	}
	l.mu.Lock()
	hold := l.lastCommanded
	l.mu.Unlock()
	if err := l.driver.Command(ctx, kinematics.JointTarget{JointPositions: hold, Reachable: true}); err != nil {
		return errors.Wrap(err, "commanding hold target")
	}
	l.holdSent = true
	return nil
}
