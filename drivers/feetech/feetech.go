// Package feetech implements the arm driver for rigs actuated by Feetech
// STS-series serial bus servos.
package feetech

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/viam-labs/dex-teleop/kinematics"
)

const defaultBaudRate = 1_000_000

// ServoMapping ties one joint to a servo on the bus and describes how the
// joint's native range maps onto raw servo ticks. RawMin may exceed RawMax
// for joints whose servo turns against the joint's positive direction.
type ServoMapping struct {
	ID     int `json:"id"`
	RawMin int `json:"raw_min"`
	RawMax int `json:"raw_max"`
}

// Config describes the serial bus and the per-joint servo layout.
type Config struct {
	Port     string                  `json:"port"`
	BaudRate int                     `json:"baud_rate,omitempty"`
	Servos   map[string]ServoMapping `json:"servos"`
}

// LoadConfig reads a driver configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read servo config %q", path)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse servo config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid servo config %q", path)
	}
	return &cfg, nil
}

// Validate ensures the config names every joint exactly once with distinct
// servo IDs and non-degenerate raw ranges.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.BaudRate < 0 {
		return errors.New("baud_rate must be non-negative")
	}
	seen := map[int]string{}
	for _, name := range kinematics.JointNames() {
		m, ok := c.Servos[name]
		if !ok {
			return errors.Errorf("missing servo mapping for joint %q", name)
		}
		if m.RawMin == m.RawMax {
			return errors.Errorf("joint %q has a degenerate raw range", name)
		}
		if prev, dup := seen[m.ID]; dup {
			return errors.Errorf("servo id %d assigned to both %q and %q", m.ID, prev, name)
		}
		seen[m.ID] = name
	}
	return nil
}

// Driver commands the arm over one Feetech serial bus using grouped sync
// reads and writes.
type Driver struct {
	model  *kinematics.Model
	cfg    *Config
	logger golog.Logger

	bus   *feetech.Bus
	group *feetech.ServoGroup

	mu     sync.Mutex
	closed bool
}

// NewDriver opens the serial bus, enables torque on every mapped servo, and
// returns a ready driver.
func NewDriver(ctx context.Context, cfg *Config, model *kinematics.Model, logger golog.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = defaultBaudRate
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening servo bus on %q", cfg.Port)
	}

	ids := make([]int, 0, len(cfg.Servos))
	for _, name := range kinematics.JointNames() {
		ids = append(ids, cfg.Servos[name].ID)
	}
	group := feetech.NewServoGroupByIDs(bus, ids...)
	if err := group.EnableAll(ctx); err != nil {
		return nil, multierr.Combine(
			errors.Wrap(err, "enabling servo torque"),
			bus.Close(),
		)
	}

	logger.Infow("servo bus ready", "port", cfg.Port, "baud_rate", baud, "servos", len(ids))
	return &Driver{model: model, cfg: cfg, logger: logger, bus: bus, group: group}, nil
}

// ReadState reads every servo in one sync read and converts the raw ticks
// into joint units. Velocities are not reported by this bus.
func (d *Driver) ReadState(ctx context.Context) (kinematics.JointState, error) {
	if err := d.checkOpen(); err != nil {
		return kinematics.JointState{}, err
	}
	raw, err := d.group.Positions(ctx)
	if err != nil {
		return kinematics.JointState{}, errors.Wrap(err, "reading servo positions")
	}

	var jp kinematics.JointPositions
	vals := jp.Values()
	for i, name := range kinematics.JointNames() {
		m := d.cfg.Servos[name]
		ticks, ok := raw[m.ID]
		if !ok {
			return kinematics.JointState{}, errors.Errorf("servo %d (%s) missing from sync read", m.ID, name)
		}
		vals[i] = d.rawToJoint(name, m, ticks)
	}
	jp.SetValues(vals)
	return kinematics.JointState{Positions: jp, Time: time.Now()}, nil
}

// Command converts the target into raw ticks and writes all servos in one
// sync write.
func (d *Driver) Command(ctx context.Context, target kinematics.JointTarget) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	raw := make(feetech.PositionMap, len(d.cfg.Servos))
	vals := target.Values()
	for i, name := range kinematics.JointNames() {
		m := d.cfg.Servos[name]
		raw[m.ID] = d.jointToRaw(name, m, vals[i])
	}
	if err := d.group.SetPositions(ctx, raw); err != nil {
		return errors.Wrap(err, "writing servo positions")
	}
	return nil
}

// Stop halts motion by re-commanding the current measured position.
func (d *Driver) Stop(ctx context.Context) error {
	js, err := d.ReadState(ctx)
	if err != nil {
		return errors.Wrap(err, "reading state for stop")
	}
	return d.Command(ctx, kinematics.JointTarget{JointPositions: js.Positions, Reachable: true})
}

// Close disables torque and releases the bus.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	return multierr.Combine(
		d.group.DisableAll(ctx),
		d.bus.Close(),
	)
}

func (d *Driver) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("servo driver is closed")
	}
	return nil
}

// rawToJoint maps raw servo ticks linearly onto the joint's limit range.
func (d *Driver) rawToJoint(joint string, m ServoMapping, ticks int) float64 {
	lim, _ := d.model.Limits(joint)
	frac := float64(ticks-m.RawMin) / float64(m.RawMax-m.RawMin)
	return lim.Min + frac*(lim.Max-lim.Min)
}

// jointToRaw is the inverse mapping, clamped to the servo's raw range.
func (d *Driver) jointToRaw(joint string, m ServoMapping, v float64) int {
	lim, _ := d.model.Limits(joint)
	frac := (v - lim.Min) / (lim.Max - lim.Min)
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	return m.RawMin + int(math.Round(frac*float64(m.RawMax-m.RawMin)))
}
