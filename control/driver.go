// Package control runs the fixed-rate teleoperation loop that turns marker
// observations into rate-limited joint commands.
package control

import (
	"context"

	"github.com/viam-labs/dex-teleop/kinematics"
)

// Driver is the hardware abstraction the control loop commands. Implementations
// live under drivers/; all methods must be safe to call from the loop goroutine
// and should return promptly, respecting ctx.
type Driver interface {
	// ReadState reports the current joint positions and, when the hardware
	// supports it, velocities.
	ReadState(ctx context.Context) (kinematics.JointState, error)

	// Command moves the joints toward the given target. It does not block
	// until the motion completes.
	Command(ctx context.Context, target kinematics.JointTarget) error

	// Stop halts all motion as quickly as the hardware allows.
	Stop(ctx context.Context) error

	// Close releases the underlying hardware. The driver is unusable after.
	Close(ctx context.Context) error
}
