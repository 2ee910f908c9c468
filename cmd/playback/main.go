// Package main replays a recorded teleoperation trajectory through the arm.
package main

import (
	"context"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/viam-labs/dex-teleop/control"
	"github.com/viam-labs/dex-teleop/drivers/fake"
	feetechdriver "github.com/viam-labs/dex-teleop/drivers/feetech"
	"github.com/viam-labs/dex-teleop/kinematics"
	"github.com/viam-labs/dex-teleop/recording"
)

var logger = golog.NewDevelopmentLogger("playback")

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Recording string  `flag:"0,required,usage=recording file to play"`
	Servos    string  `flag:"servos,usage=servo bus config JSON; omit to use the simulated arm"`
	Speed     float64 `flag:"speed,default=1,usage=playback speed multiplier"`
	Loop      bool    `flag:"loop,usage=repeat until interrupted"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) (err error) {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	session, err := recording.Load(argsParsed.Recording)
	if err != nil {
		return err
	}

	var driver control.Driver
	if argsParsed.Servos != "" {
		servoCfg, err := feetechdriver.LoadConfig(argsParsed.Servos)
		if err != nil {
			return err
		}
		if driver, err = feetechdriver.NewDriver(ctx, servoCfg, kinematics.DefaultModel(), logger); err != nil {
			return err
		}
	} else {
		logger.Infow("no servo config given; driving a simulated arm")
		driver = fake.NewDriver(session.Samples[0].Positions, logger)
	}
	defer func() {
		err = multierr.Combine(err, driver.Close(context.Background()))
	}()

	opts := recording.PlayOptions{Speed: argsParsed.Speed, Loop: argsParsed.Loop}
	return session.Play(ctx, driver, nil, opts, logger)
}
