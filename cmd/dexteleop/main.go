// Package main runs a marker-driven teleoperation session: a webcam tracks
// the tongs, the control loop follows them with the arm.
package main

import (
	"context"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	goutils "go.viam.com/utils"

	"github.com/viam-labs/dex-teleop/calibration"
	"github.com/viam-labs/dex-teleop/config"
	"github.com/viam-labs/dex-teleop/control"
	"github.com/viam-labs/dex-teleop/drivers/fake"
	feetechdriver "github.com/viam-labs/dex-teleop/drivers/feetech"
	"github.com/viam-labs/dex-teleop/kinematics"
	"github.com/viam-labs/dex-teleop/recording"
	"github.com/viam-labs/dex-teleop/teleop"
	"github.com/viam-labs/dex-teleop/vision"
)

var logger = golog.NewDevelopmentLogger("dexteleop")

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Calibration string `flag:"calibration,required,usage=tongs calibration JSON"`
	Camera      string `flag:"camera,required,usage=webcam config JSON"`
	Config      string `flag:"config,usage=session config JSON; omit for defaults"`
	Servos      string `flag:"servos,usage=servo bus config JSON; omit to use the simulated arm"`
	Record      string `flag:"record,usage=record the commanded trajectory to this file"`
	Debug       bool   `flag:"debug"`
	Slow        bool   `flag:"slow,usage=halve all joint speed limits"`
	Mirrored    bool   `flag:"mirrored,usage=swap tong roles for an operator facing the robot"`
	Ground      bool   `flag:"ground,usage=bias the lift range toward the ground"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) (err error) {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if !argsParsed.Debug {
		logger = logger.Desugar().WithOptions(zap.IncreaseLevel(zap.InfoLevel)).Sugar()
	}

	cfg := config.Default()
	if argsParsed.Config != "" {
		if cfg, err = config.FromFile(argsParsed.Config); err != nil {
			return err
		}
	}
	cfg.ReducedSpeed = cfg.ReducedSpeed || argsParsed.Slow
	cfg.Mirrored = cfg.Mirrored || argsParsed.Mirrored
	cfg.ManipulateOnGround = cfg.ManipulateOnGround || argsParsed.Ground

	calib, err := calibration.Load(argsParsed.Calibration)
	if err != nil {
		return err
	}
	camCfg, err := vision.LoadWebcamConfig(argsParsed.Camera)
	if err != nil {
		return err
	}

	webcam, err := vision.NewWebcam(camCfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, webcam.Close())
	}()

	model := cfg.KinematicModel()
	var driver control.Driver
	if argsParsed.Servos != "" {
		servoCfg, err := feetechdriver.LoadConfig(argsParsed.Servos)
		if err != nil {
			return err
		}
		if driver, err = feetechdriver.NewDriver(ctx, servoCfg, model, logger); err != nil {
			return err
		}
	} else {
		logger.Infow("no servo config given; driving a simulated arm")
		driver = fake.NewDriver(kinematics.JointPositions{Lift: 0.5}, logger)
	}
	defer func() {
		err = multierr.Combine(err, driver.Close(context.Background()))
	}()

	if argsParsed.Record != "" {
		recorder, err := recording.NewFileRecorder(argsParsed.Record, cfg.LoopRateHz)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, recorder.Close())
		}()
		driver = recorder.WrapDriver(driver)
	}

	var solverOpts []kinematics.SolverOption
	if cfg.ManipulateOnGround {
		solverOpts = append(solverOpts, kinematics.WithGroundMode())
	}
	solver := kinematics.NewSolver(model, logger, solverOpts...)
	gen := teleop.NewGenerator(cfg, calib, logger)

	frames := &vision.LatestFrame{}
	webcam.Start(ctx, frames)

	loop := control.NewLoop(cfg, gen, solver, frames, driver, nil, logger)
	return loop.Run(ctx)
}
