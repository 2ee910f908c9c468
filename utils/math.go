// Package utils contains small shared helpers for angles and floats.
package utils

import "math"

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Clamp keeps value inside [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// NormalizeAngle maps an angle in radians to the canonical range (-π, π].
func NormalizeAngle(theta float64) float64 {
	theta = math.Mod(theta, 2*math.Pi)
	if theta <= -math.Pi {
		theta += 2 * math.Pi
	} else if theta > math.Pi {
		theta -= 2 * math.Pi
	}
	return theta
}

// UnwrapAngle returns the representation of theta closest to ref, shifted
// by whole turns. Keeps successive extractions of the same physical angle
// from oscillating across the ±π wrap.
func UnwrapAngle(theta, ref float64) float64 {
	return ref + NormalizeAngle(theta-ref)
}

// Float64AlmostEqual compares two float64s within an epsilon.
func Float64AlmostEqual(v, ov, epsilon float64) bool {
	return math.Abs(v-ov) <= epsilon
}

// Square is faster than math.Pow(x, 2).
func Square(n float64) float64 {
	return n * n
}
