package lidar

import "github.com/chewxy/math32"

const twoPi = 2 * math32.Pi

// DegreesToRadians converts an angle in degrees to radians.
func DegreesToRadians(deg float32) float32 {
	return deg * (math32.Pi / 180)
}

// RadiansToDegrees converts an angle in radians to degrees.
func RadiansToDegrees(rad float32) float32 {
	return rad * (180 / math32.Pi)
}

// NormalizeAngle maps an angle in radians onto (-π, π].
// Exactly -π maps to +π. Angles already in range are returned unchanged.
func NormalizeAngle(a float32) float32 {
	if a > -math32.Pi && a <= math32.Pi {
		return a
	}
	a = math32.Mod(a, twoPi)
	if a > math32.Pi {
		a -= twoPi
	} else if a <= -math32.Pi {
		a += twoPi
	}
	return a
}
