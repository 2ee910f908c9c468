package vision

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"gocv.io/x/gocv"

	"github.com/viam-labs/dex-teleop/spatialmath"
)

// Intrinsics is the pinhole camera model produced by the offline camera
// calibration tool.
type Intrinsics struct {
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
	// DistCoeffs are the radial/tangential distortion coefficients
	// (k1, k2, p1, p2, k3).
	DistCoeffs []float64 `json:"dist_coeffs"`
}

// WebcamConfig configures the marker-detecting webcam.
type WebcamConfig struct {
	DeviceID    int        `json:"device_id"`
	MarkerSizeM float64    `json:"marker_size_m"`
	Intrinsics  Intrinsics `json:"intrinsics"`
}

// Validate ensures all parts of the config are valid.
func (cfg *WebcamConfig) Validate() error {
	if cfg.MarkerSizeM <= 0 {
		return errors.New("marker_size_m must be positive")
	}
	if cfg.Intrinsics.Fx <= 0 || cfg.Intrinsics.Fy <= 0 {
		return errors.New("camera intrinsics are required")
	}
	return nil
}

// LoadWebcamConfig reads and validates a webcam configuration from a JSON
// file.
func LoadWebcamConfig(path string) (WebcamConfig, error) {
	var cfg WebcamConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "cannot read webcam config %q", path)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "cannot parse webcam config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid webcam config %q", path)
	}
	return cfg, nil
}

// Webcam captures frames from a local camera, detects ArUco markers, and
// recovers each marker's pose in the camera frame. It is the boundary glue
// in front of OpenCV; everything downstream consumes ObservationSets only.
type Webcam struct {
	cfg      WebcamConfig
	logger   golog.Logger
	capture  *gocv.VideoCapture
	detector gocv.ArucoDetector

	cameraMatrix gocv.Mat
	distCoeffs   gocv.Mat
	objPoints    gocv.Point3fVector

	mu                      sync.Mutex
	closed                  bool
	activeBackgroundWorkers sync.WaitGroup
}

// NewWebcam opens the camera device and prepares the detector.
func NewWebcam(cfg WebcamConfig, logger golog.Logger) (*Webcam, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	capture, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open camera device %d", cfg.DeviceID)
	}

	cameraMatrix := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	cameraMatrix.SetDoubleAt(0, 0, cfg.Intrinsics.Fx)
	cameraMatrix.SetDoubleAt(1, 1, cfg.Intrinsics.Fy)
	cameraMatrix.SetDoubleAt(0, 2, cfg.Intrinsics.Cx)
	cameraMatrix.SetDoubleAt(1, 2, cfg.Intrinsics.Cy)
	cameraMatrix.SetDoubleAt(2, 2, 1)

	coeffs := cfg.Intrinsics.DistCoeffs
	if len(coeffs) == 0 {
		coeffs = make([]float64, 5)
	}
	distCoeffs := gocv.NewMatWithSize(1, len(coeffs), gocv.MatTypeCV64F)
	for i, k := range coeffs {
		distCoeffs.SetDoubleAt(0, i, k)
	}

	// Marker corners in the marker's own frame, matching the corner order
	// returned by the detector (top-left, top-right, bottom-right,
	// bottom-left).
	half := float32(cfg.MarkerSizeM / 2)
	objPoints := gocv.NewPoint3fVectorFromPoints([]gocv.Point3f{
		{X: -half, Y: half, Z: 0},
		{X: half, Y: half, Z: 0},
		{X: half, Y: -half, Z: 0},
		{X: -half, Y: -half, Z: 0},
	})

	detector := gocv.NewArucoDetectorWithParams(
		gocv.GetPredefinedDictionary(gocv.ArucoDict4x4_50),
		gocv.NewArucoDetectorParameters(),
	)

	return &Webcam{
		cfg:          cfg,
		logger:       logger,
		capture:      capture,
		detector:     detector,
		cameraMatrix: cameraMatrix,
		distCoeffs:   distCoeffs,
		objPoints:    objPoints,
	}, nil
}

// Start launches the capture worker, publishing every processed frame's
// observations into out. It returns immediately.
func (w *Webcam) Start(ctx context.Context, out *LatestFrame) {
	w.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		img := gocv.NewMat()
		defer func() {
			goutils.UncheckedError(img.Close())
		}()
		for {
			if ctx.Err() != nil {
				return
			}
			if !w.capture.Read(&img) || img.Empty() {
				if !goutils.SelectContextOrWait(ctx, 10*time.Millisecond) {
					return
				}
				continue
			}
			set, err := w.processFrame(img)
			if err != nil {
				w.logger.Debugw("frame processing failed", "error", err)
				continue
			}
			out.Publish(set)
		}
	}, w.activeBackgroundWorkers.Done)
}

// processFrame runs marker detection and per-marker pose recovery on one
// captured image.
func (w *Webcam) processFrame(img gocv.Mat) (*ObservationSet, error) {
	set := NewObservationSet(time.Now())

	corners, ids, _ := w.detector.DetectMarkers(img)
	for i, id := range ids {
		if len(corners[i]) != 4 {
			continue
		}
		obs, err := w.solveMarkerPose(id, corners[i])
		if err != nil {
			w.logger.Debugw("marker pose recovery failed", "marker", id, "error", err)
			continue
		}
		if err := set.Add(obs); err != nil {
			// Detectors can emit the same id twice on a corrupted frame;
			// keep the first hit.
			continue
		}
	}
	return set, nil
}

func (w *Webcam) solveMarkerPose(id int, corners []gocv.Point2f) (MarkerObservation, error) {
	imgPoints := gocv.NewPoint2fVectorFromPoints(corners)
	defer imgPoints.Close()

	rvec := gocv.NewMat()
	defer func() {
		goutils.UncheckedError(rvec.Close())
	}()
	tvec := gocv.NewMat()
	defer func() {
		goutils.UncheckedError(tvec.Close())
	}()

	if ok := gocv.SolvePnP(w.objPoints, imgPoints, w.cameraMatrix, w.distCoeffs, &rvec, &tvec, false, 0); !ok {
		return MarkerObservation{}, errors.Errorf("solvePnP failed for marker %d", id)
	}

	rmat := gocv.NewMat()
	defer func() {
		goutils.UncheckedError(rmat.Close())
	}()
	gocv.Rodrigues(rvec, &rmat)

	bx := r3.Vector{X: rmat.GetDoubleAt(0, 0), Y: rmat.GetDoubleAt(1, 0), Z: rmat.GetDoubleAt(2, 0)}
	by := r3.Vector{X: rmat.GetDoubleAt(0, 1), Y: rmat.GetDoubleAt(1, 1), Z: rmat.GetDoubleAt(2, 1)}
	bz := r3.Vector{X: rmat.GetDoubleAt(0, 2), Y: rmat.GetDoubleAt(1, 2), Z: rmat.GetDoubleAt(2, 2)}

	return MarkerObservation{
		ID: id,
		Position: r3.Vector{
			X: tvec.GetDoubleAt(0, 0),
			Y: tvec.GetDoubleAt(1, 0),
			Z: tvec.GetDoubleAt(2, 0),
		},
		Orientation: spatialmath.QuaternionFromBasis(bx, by, bz),
		Confidence:  1,
	}, nil
}

// Close stops the worker and releases the camera and OpenCV handles.
func (w *Webcam) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.activeBackgroundWorkers.Wait()
	err := w.capture.Close()
	goutils.UncheckedError(w.detector.Close())
	goutils.UncheckedError(w.cameraMatrix.Close())
	goutils.UncheckedError(w.distCoeffs.Close())
	w.objPoints.Close()
	return err
}
