// Package calibration loads the fixed outputs of the one-shot offline
// calibration procedures: the camera-to-base transform and the tong
// reference distances used for gripper aperture normalization. Loaded once
// at startup and never mutated at runtime.
package calibration

import (
	"encoding/json"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/viam-labs/dex-teleop/spatialmath"
)

// rotationJSON is the on-disk unit quaternion, w first.
type rotationJSON struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// vectorJSON is an on-disk 3-vector in meters.
type vectorJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type calibrationJSON struct {
	Rotation    rotationJSON `json:"camera_to_base_rotation"`
	Translation vectorJSON   `json:"camera_to_base_translation_m"`
	TongsClosed float64      `json:"tongs_closed_m"`
	TongsOpen   float64      `json:"tongs_open_m"`
}

// Calibration is the resolved calibration for one camera/robot pairing.
type Calibration struct {
	// CameraToBase maps camera-frame coordinates into the robot base frame.
	CameraToBase spatialmath.RigidTransform
	// TongsClosed and TongsOpen are the inter-marker distances, in meters,
	// at which the gripper is fully closed and fully open.
	TongsClosed float64
	TongsOpen   float64
}

// Load reads and validates a calibration file.
func Load(path string) (*Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read calibration %q", path)
	}
	var raw calibrationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "cannot parse calibration %q", path)
	}
	c := &Calibration{
		CameraToBase: spatialmath.RigidTransform{
			Rotation: quat.Number{
				Real: raw.Rotation.W,
				Imag: raw.Rotation.X,
				Jmag: raw.Rotation.Y,
				Kmag: raw.Rotation.Z,
			},
			Translation: r3.Vector{X: raw.Translation.X, Y: raw.Translation.Y, Z: raw.Translation.Z},
		},
		TongsClosed: raw.TongsClosed,
		TongsOpen:   raw.TongsOpen,
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid calibration %q", path)
	}
	return c, nil
}

// Validate ensures the calibration can be used. Motion must never be
// commanded through an unvalidated calibration.
func (c *Calibration) Validate() error {
	n := quat.Abs(c.CameraToBase.Rotation)
	if n < 1e-6 {
		return errors.New("camera_to_base_rotation is missing or zero")
	}
	// Tolerate small drift from unit norm, renormalizing silently.
	if n < 0.99 || n > 1.01 {
		return errors.Errorf("camera_to_base_rotation is not a unit quaternion (norm %f)", n)
	}
	c.CameraToBase.Rotation = spatialmath.Normalize(c.CameraToBase.Rotation)
	if c.TongsClosed <= 0 {
		return errors.New("tongs_closed_m must be positive")
	}
	if c.TongsOpen <= c.TongsClosed {
		return errors.New("tongs_open_m must be greater than tongs_closed_m")
	}
	return nil
}

// Aperture normalizes an inter-marker distance into [0, 1], 0 at the
// calibrated closed distance and 1 at the calibrated open distance.
func (c *Calibration) Aperture(distance float64) float64 {
	a := (distance - c.TongsClosed) / (c.TongsOpen - c.TongsClosed)
	if a < 0 {
		return 0
	}
	if a > 1 {
		return 1
	}
	return a
}
