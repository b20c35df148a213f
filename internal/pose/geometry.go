package pose

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/poseview/internal/sensor"
)

// Angle returns the direction of the segment a->b in the X/Y plane, in degrees.
func Angle(a, b sensor.Point3) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X) * 180 / math.Pi
}

// AngleDiff returns the absolute difference of two directions in [0, 180].
func AngleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Tilt returns the angle between segment a-b and the horizontal in [0, 90],
// regardless of direction.
func Tilt(a, b sensor.Point3) float64 {
	t := math.Abs(Angle(a, b))
	if t > 90 {
		t = 180 - t
	}
	return t
}

// Straight reports whether the upper and lower arm point the same way
// within tol degrees.
func Straight(shoulder, elbow, hand sensor.Point3, tol float64) bool {
	return AngleDiff(Angle(shoulder, elbow), Angle(elbow, hand)) <= tol
}

// Distance returns the euclidean distance between two joints.
func Distance(a, b sensor.Point3) float64 {
	return r3.Norm(r3.Sub(vec(a), vec(b)))
}

func vec(p sensor.Point3) r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}
