package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestNormalizeAngle(t *testing.T) {
	for _, c := range []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{2 * math.Pi, 0},
		{-5 * math.Pi / 2, -math.Pi / 2},
		{7 * math.Pi, math.Pi},
	} {
		test.That(t, NormalizeAngle(c.in), test.ShouldAlmostEqual, c.want, 1e-12)
	}
}

func TestUnwrapAngle(t *testing.T) {
	// A fresh extraction just below -π should unwrap to just above π when
	// the previous tick reported just above π.
	prev := math.Pi - 0.01
	next := -math.Pi + 0.01
	test.That(t, UnwrapAngle(next, prev), test.ShouldAlmostEqual, math.Pi+0.01, 1e-12)

	// Far-apart angles stay put.
	test.That(t, UnwrapAngle(0.5, 0.4), test.ShouldAlmostEqual, 0.5, 1e-12)
}

func TestClamp(t *testing.T) {
	test.That(t, Clamp(1.5, 0, 1), test.ShouldEqual, 1.0)
	test.That(t, Clamp(-0.5, 0, 1), test.ShouldEqual, 0.0)
	test.That(t, Clamp(0.25, 0, 1), test.ShouldEqual, 0.25)
}
