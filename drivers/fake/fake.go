// Package fake implements an in-memory driver for running the teleoperation
// pipeline without hardware attached.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/viam-labs/dex-teleop/kinematics"
)

// Driver simulates an arm that reaches every commanded target within one
// tick. The control loop's own velocity limiting is the only motion model.
type Driver struct {
	logger golog.Logger

	mu        sync.Mutex
	positions kinematics.JointPositions
	commanded uint64
	stopped   bool
	closed    bool
}

// NewDriver returns a simulated arm starting at the given joint positions.
func NewDriver(initial kinematics.JointPositions, logger golog.Logger) *Driver {
	return &Driver{logger: logger, positions: initial}
}

// ReadState reports the simulated joint positions with zero velocities.
func (d *Driver) ReadState(ctx context.Context) (kinematics.JointState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return kinematics.JointState{}, errors.New("fake driver is closed")
	}
	return kinematics.JointState{Positions: d.positions, Time: time.Now()}, nil
}

// Command adopts the target immediately.
func (d *Driver) Command(ctx context.Context, target kinematics.JointTarget) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("fake driver is closed")
	}
	d.positions = target.JointPositions
	d.commanded++
	d.stopped = false
	return nil
}

// Stop freezes the simulated arm in place.
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("fake driver is closed")
	}
	d.stopped = true
	return nil
}

// Close marks the driver unusable.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// CommandCount reports how many targets have been commanded.
func (d *Driver) CommandCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commanded
}

// Stopped reports whether the last action was a stop.
func (d *Driver) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}
