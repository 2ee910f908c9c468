package control

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/viam-labs/dex-teleop/config"
	"github.com/viam-labs/dex-teleop/kinematics"
	"github.com/viam-labs/dex-teleop/spatialmath"
	"github.com/viam-labs/dex-teleop/teleop"
	"github.com/viam-labs/dex-teleop/vision"
)

// scriptedGoals replays a fixed goal sequence, repeating the last entry.
type scriptedGoals struct {
	goals []teleop.TeleopGoal
	i     int
}

func (s *scriptedGoals) Update(_ *vision.ObservationSet, now time.Time, _ time.Duration) teleop.TeleopGoal {
	g := s.goals[s.i]
	if s.i < len(s.goals)-1 {
		s.i++
	}
	g.Time = now
	return g
}

type captureDriver struct {
	mu            sync.Mutex
	state         kinematics.JointState
	commands      []kinematics.JointTarget
	reads         int
	failReadAfter int // fail reads beyond this many; 0 disables
	commandErr    error
	stopCount     int
	onCommand     func()
}

func (d *captureDriver) ReadState(context.Context) (kinematics.JointState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if d.failReadAfter > 0 && d.reads > d.failReadAfter {
		return kinematics.JointState{}, errors.New("encoder read failed")
	}
	return d.state, nil
}

func (d *captureDriver) Command(_ context.Context, target kinematics.JointTarget) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onCommand != nil {
		d.onCommand()
	}
	if d.commandErr != nil {
		return d.commandErr
	}
	d.commands = append(d.commands, target)
	return nil
}

func (d *captureDriver) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopCount++
	return nil
}

func (d *captureDriver) Close(context.Context) error { return nil }

func (d *captureDriver) commandCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.commands)
}

func (d *captureDriver) lastCommand() kinematics.JointTarget {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commands[len(d.commands)-1]
}

// reachableGoal is a pose comfortably inside every joint limit of the
// default model.
func reachableGoal() teleop.TeleopGoal {
	return teleop.TeleopGoal{
		Position:    r3.Vector{X: 0.48, Z: 0.6},
		Orientation: spatialmath.NewZeroOrientation(),
		Aperture:    0.5,
		Valid:       true,
	}
}

func invalidGoal() teleop.TeleopGoal {
	return teleop.TeleopGoal{Orientation: spatialmath.NewZeroOrientation()}
}

func newTestLoop(t *testing.T, cfg *config.Config, goals GoalSource, driver Driver, clk clock.Clock) *Loop {
	t.Helper()
	logger := golog.NewTestLogger(t)
	solver := kinematics.NewSolver(cfg.KinematicModel(), logger)
	return NewLoop(cfg, goals, solver, nil, driver, clk, logger)
}

func TestLimitStep(t *testing.T) {
	maxVel := kinematics.JointPositions{Lift: 1, Extension: 1, WristYaw: 1, WristPitch: 1, WristRoll: 1, Gripper: 1}
	prev := kinematics.JointPositions{}

	// Small move, untouched.
	target := kinematics.JointPositions{Lift: 0.01}
	out, limited := limitStep(prev, target, maxVel, 100*time.Millisecond, 1)
	test.That(t, limited, test.ShouldBeFalse)
	test.That(t, out, test.ShouldResemble, target)

	// Big move, clamped to one tick's budget per joint, sign preserved.
	target = kinematics.JointPositions{Lift: 1, WristYaw: -2}
	out, limited = limitStep(prev, target, maxVel, 100*time.Millisecond, 1)
	test.That(t, limited, test.ShouldBeTrue)
	test.That(t, out.Lift, test.ShouldAlmostEqual, 0.1)
	test.That(t, out.WristYaw, test.ShouldAlmostEqual, -0.1)

	// Speed scale halves the budget.
	out, _ = limitStep(prev, target, maxVel, 100*time.Millisecond, 0.5)
	test.That(t, out.Lift, test.ShouldAlmostEqual, 0.05)
}

func TestStateMachine(t *testing.T) {
	cfg := config.Default()
	goals := &scriptedGoals{goals: []teleop.TeleopGoal{invalidGoal()}}
	driver := &captureDriver{}
	l := newTestLoop(t, cfg, goals, driver, clock.NewMock())
	period := cfg.TickPeriod()
	ctx := context.Background()

	// No motion before the first valid goal.
	test.That(t, l.tick(ctx, time.Now(), period), test.ShouldBeNil)
	test.That(t, l.State(), test.ShouldEqual, StateInitializing)
	test.That(t, driver.commandCount(), test.ShouldEqual, 0)

	// First valid goal starts tracking.
	goals.goals = []teleop.TeleopGoal{reachableGoal()}
	goals.i = 0
	test.That(t, l.tick(ctx, time.Now(), period), test.ShouldBeNil)
	test.That(t, l.State(), test.ShouldEqual, StateTracking)
	test.That(t, driver.commandCount(), test.ShouldEqual, 1)

	// Losing the goal holds position, commanding the hold target once only.
	goals.goals = []teleop.TeleopGoal{invalidGoal()}
	goals.i = 0
	test.That(t, l.tick(ctx, time.Now(), period), test.ShouldBeNil)
	test.That(t, l.State(), test.ShouldEqual, StateHolding)
	test.That(t, driver.commandCount(), test.ShouldEqual, 2)
	test.That(t, l.tick(ctx, time.Now(), period), test.ShouldBeNil)
	test.That(t, driver.commandCount(), test.ShouldEqual, 2)

	// Reacquiring resumes tracking.
	goals.goals = []teleop.TeleopGoal{reachableGoal()}
	goals.i = 0
	test.That(t, l.tick(ctx, time.Now(), period), test.ShouldBeNil)
	test.That(t, l.State(), test.ShouldEqual, StateTracking)
	test.That(t, driver.commandCount(), test.ShouldEqual, 3)
}

func TestRateLimiting(t *testing.T) {
	cfg := config.Default()
	cfg.MaxJointVelocities = kinematics.JointPositions{
		Lift: 0.1, Extension: 0.1, WristYaw: 0.5, WristPitch: 0.5, WristRoll: 0.5, Gripper: 0.5,
	}
	goals := &scriptedGoals{goals: []teleop.TeleopGoal{reachableGoal()}}
	driver := &captureDriver{}
	l := newTestLoop(t, cfg, goals, driver, clock.NewMock())
	period := cfg.TickPeriod()
	ctx := context.Background()

	prev := l.lastCommanded
	for i := 0; i < 200; i++ {
		test.That(t, l.tick(ctx, time.Now(), period), test.ShouldBeNil)
		cmd := driver.lastCommand().JointPositions
		prevVals, cmdVals := prev.Values(), cmd.Values()
		maxVals := cfg.MaxJointVelocities.Values()
		for j := range cmdVals {
			budget := maxVals[j]*period.Seconds() + 1e-12
			test.That(t, math.Abs(cmdVals[j]-prevVals[j]), test.ShouldBeLessThanOrEqualTo, budget)
		}
		prev = cmd
	}

	// With enough ticks the commands settle on the solved target.
	goal := reachableGoal()
	target := l.solver.Inverse(spatialmath.NewPose(goal.Position, goal.Orientation), goal.Aperture)
	final := driver.lastCommand().JointPositions
	test.That(t, final.Lift, test.ShouldAlmostEqual, target.Lift, 1e-9)
	test.That(t, final.Extension, test.ShouldAlmostEqual, target.Extension, 1e-9)
}

func TestDriverFailureIsFatal(t *testing.T) {
	cfg := config.Default()
	goals := &scriptedGoals{goals: []teleop.TeleopGoal{reachableGoal()}}
	driver := &captureDriver{commandErr: errors.New("bus timeout")}
	l := newTestLoop(t, cfg, goals, driver, clock.NewMock())

	err := l.Run(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bus timeout")
	test.That(t, l.State(), test.ShouldEqual, StateShuttingDown)
	driver.mu.Lock()
	stops := driver.stopCount
	driver.mu.Unlock()
	test.That(t, stops, test.ShouldEqual, 1)
}

func TestReadFailureIsFatal(t *testing.T) {
	cfg := config.Default()
	goals := &scriptedGoals{goals: []teleop.TeleopGoal{reachableGoal()}}
	// The startup read succeeds; the first in-tick read fails.
	driver := &captureDriver{failReadAfter: 1}
	l := newTestLoop(t, cfg, goals, driver, clock.NewMock())

	err := l.Run(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "encoder read failed")
	test.That(t, l.State(), test.ShouldEqual, StateShuttingDown)
}

func TestOverrunRebasesSchedule(t *testing.T) {
	cfg := config.Default()
	clk := clock.NewMock()
	goals := &scriptedGoals{goals: []teleop.TeleopGoal{reachableGoal()}}

	// Each command burns two tick periods of mock time, then the driver
	// fails to end the run.
	var ticks int
	driver := &captureDriver{}
	driver.onCommand = func() {
		ticks++
		clk.Add(2 * cfg.TickPeriod())
		if ticks >= 5 {
			driver.commandErr = errors.New("done")
		}
	}
	l := newTestLoop(t, cfg, goals, driver, clk)

	err := l.Run(context.Background())
	test.That(t, err, test.ShouldNotBeNil)

	// The fifth tick fails inside Command, so only four complete.
	stats := l.Stats()
	test.That(t, stats.Ticks, test.ShouldEqual, uint64(4))
	test.That(t, stats.Overruns, test.ShouldEqual, uint64(4))
	test.That(t, stats.WorstOverrun, test.ShouldBeGreaterThan, time.Duration(0))
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	goals := &scriptedGoals{goals: []teleop.TeleopGoal{reachableGoal()}}
	driver := &captureDriver{}
	l := newTestLoop(t, cfg, goals, driver, clock.New())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		test.That(t, err, test.ShouldBeNil)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancel")
	}
	test.That(t, l.State(), test.ShouldEqual, StateShuttingDown)
	driver.mu.Lock()
	stops := driver.stopCount
	driver.mu.Unlock()
	test.That(t, stops, test.ShouldEqual, 1)
}
