package math

import (
	"github.com/chewxy/math32"
	"golang.org/x/exp/constraints"
)

const (
	K_PI            float32 = math32.Pi
	K_HALF_PI       float32 = 0.5 * K_PI
	K_DEG2RAD       float32 = K_PI / 180.0
	K_RAD2DEG       float32 = 180.0 / K_PI
	K_INFINITY      float32 = 1e30
	K_FLOAT_EPSILON float32 = 1.192092896e-07
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func DegToRad(degrees float32) float32 {
	return degrees * K_DEG2RAD
}

func RadToDeg(radians float32) float32 {
	return radians * K_RAD2DEG
}

// NearlyEqual compares with an absolute tolerance.
func NearlyEqual(a, b, tolerance float32) bool {
	return math32.Abs(a-b) <= tolerance
}
