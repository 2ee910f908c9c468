// Package vision defines the marker observation model produced by the
// camera pipeline and the single-slot handoff that carries the most recent
// frame's observations to the goal generator.
package vision

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// MarkerObservation is one fiducial marker's pose in the camera frame for a
// single processed frame. Immutable once created.
type MarkerObservation struct {
	ID          int
	Position    r3.Vector
	Orientation quat.Number
	Confidence  float64
	Time        time.Time
}

// ObservationSet holds at most one observation per marker for one frame.
// An absent marker has no entry.
type ObservationSet struct {
	frameTime time.Time
	markers   map[int]MarkerObservation
}

// NewObservationSet creates an empty set for a frame captured at t.
func NewObservationSet(t time.Time) *ObservationSet {
	return &ObservationSet{frameTime: t, markers: map[int]MarkerObservation{}}
}

// Time returns the frame timestamp.
func (s *ObservationSet) Time() time.Time {
	return s.frameTime
}

// Add inserts an observation, rejecting duplicates for the same marker.
func (s *ObservationSet) Add(obs MarkerObservation) error {
	if _, ok := s.markers[obs.ID]; ok {
		return errors.Errorf("duplicate observation for marker %d", obs.ID)
	}
	obs.Time = s.frameTime
	s.markers[obs.ID] = obs
	return nil
}

// Get returns the observation for a marker id, if present.
func (s *ObservationSet) Get(id int) (MarkerObservation, bool) {
	obs, ok := s.markers[id]
	return obs, ok
}

// Len returns the number of observed markers.
func (s *ObservationSet) Len() int {
	return len(s.markers)
}

// StaleBy reports whether the frame is older than maxAge at time now.
func (s *ObservationSet) StaleBy(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.frameTime) > maxAge
}
