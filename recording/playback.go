package recording

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/viam-labs/dex-teleop/control"
	"github.com/viam-labs/dex-teleop/kinematics"
)

// Session is a fully loaded recording.
type Session struct {
	Header  Header
	Samples []Sample
}

// Load reads a recording file into memory.
func Load(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open recording %q", path)
	}
	defer func() {
		_ = f.Close()
	}()
	return Decode(f)
}

// Decode reads a recording from r.
func Decode(r io.Reader) (*Session, error) {
	dec := json.NewDecoder(bufio.NewReader(r))

	var s Session
	if err := dec.Decode(&s.Header); err != nil {
		return nil, errors.Wrap(err, "reading recording header")
	}
	if s.Header.RateHz <= 0 {
		return nil, errors.New("recording header has a non-positive rate")
	}
	for {
		var sample Sample
		if err := dec.Decode(&sample); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "reading recording sample")
		}
		s.Samples = append(s.Samples, sample)
	}
	if len(s.Samples) == 0 {
		return nil, errors.New("recording has no samples")
	}
	return &s, nil
}

// PlayOptions adjust playback behavior.
type PlayOptions struct {
	// Speed scales the playback rate; 0 means 1.
	Speed float64
	// Loop repeats the session until ctx is canceled.
	Loop bool
}

// Play replays the session through the driver at the recorded rate, then
// stops the driver. A canceled context ends playback early and returns nil.
func (s *Session) Play(ctx context.Context, driver control.Driver, clk clock.Clock, opts PlayOptions, logger golog.Logger) error {
	if clk == nil {
		clk = clock.New()
	}
	speed := opts.Speed
	if speed == 0 {
		speed = 1
	}
	if speed < 0 {
		return errors.New("playback speed must be positive")
	}
	period := time.Duration(float64(time.Second) / (s.Header.RateHz * speed))

	logger.Infow("playing recording",
		"id", s.Header.ID,
		"samples", len(s.Samples),
		"rate_hz", s.Header.RateHz,
		"speed", speed,
		"loop", opts.Loop,
	)

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := driver.Stop(stopCtx); err != nil {
			logger.Errorw("stopping driver after playback", "error", err)
		}
	}()

	for {
		for _, sample := range s.Samples {
			if ctx.Err() != nil {
				return nil
			}
			target := kinematics.JointTarget{JointPositions: sample.Positions, Reachable: true}
			if err := driver.Command(ctx, target); err != nil {
				return errors.Wrapf(err, "commanding sample %d", sample.Tick)
			}
			timer := clk.Timer(period)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
		if !opts.Loop {
			return nil
		}
	}
}
