// Package recording captures commanded joint trajectories to JSON-lines
// files and plays them back through a driver at the original rate.
package recording

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/viam-labs/dex-teleop/control"
	"github.com/viam-labs/dex-teleop/kinematics"
)

// Header is the first line of a recording file.
type Header struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	RateHz  float64   `json:"rate_hz"`
	Joints  []string  `json:"joints"`
}

// Sample is one commanded joint configuration, in recording order.
type Sample struct {
	Tick      uint64                    `json:"tick"`
	Positions kinematics.JointPositions `json:"positions"`
}

// Recorder streams samples to a writer as they are commanded. Safe for use
// from the control loop goroutine alongside a closer elsewhere.
type Recorder struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	enc    *json.Encoder
	tick   uint64
	closed bool
}

// NewRecorder writes a header for a session recorded at rateHz and returns a
// recorder appending to w.
func NewRecorder(w io.Writer, rateHz float64) (*Recorder, error) {
	if rateHz <= 0 {
		return nil, errors.New("recording rate must be positive")
	}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	header := Header{
		ID:      uuid.NewString(),
		Created: time.Now().UTC(),
		RateHz:  rateHz,
		Joints:  kinematics.JointNames(),
	}
	if err := enc.Encode(header); err != nil {
		return nil, errors.Wrap(err, "writing recording header")
	}
	r := &Recorder{w: bw, enc: enc}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r, nil
}

// NewFileRecorder creates path and records into it.
func NewFileRecorder(path string, rateHz float64) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create recording %q", path)
	}
	r, err := NewRecorder(f, rateHz)
	if err != nil {
		return nil, multierr.Combine(err, f.Close())
	}
	return r, nil
}

// Record appends one sample.
func (r *Recorder) Record(jp kinematics.JointPositions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("recorder is closed")
	}
	s := Sample{Tick: r.tick, Positions: jp}
	r.tick++
	return errors.Wrap(r.enc.Encode(s), "writing recording sample")
}

// Close flushes buffered samples and closes the underlying file, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.w.Flush()
	if r.closer != nil {
		err = multierr.Combine(err, r.closer.Close())
	}
	return err
}

// WrapDriver returns a driver that records every successfully commanded
// target before passing other calls through unchanged.
func (r *Recorder) WrapDriver(d control.Driver) control.Driver {
	return &recordingDriver{Driver: d, rec: r}
}

type recordingDriver struct {
	control.Driver
	rec *Recorder
}

func (rd *recordingDriver) Command(ctx context.Context, target kinematics.JointTarget) error {
	if err := rd.Driver.Command(ctx, target); err != nil {
		return err
	}
	return rd.rec.Record(target.JointPositions)
}
