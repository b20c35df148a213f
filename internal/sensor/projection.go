package sensor

import "math"

// Depth camera field of view of PrimeSense-class sensors, in radians.
const (
	DefaultHFOV = 1.0225999
	DefaultVFOV = 0.79661566
)

// Projector converts world coordinates to depth-image pixel coordinates
// using the tracker SDK's pinhole model.
type Projector struct {
	Width  int
	Height int
	HFOV   float64
	VFOV   float64
}

// NewProjector returns a Projector for the given depth resolution with the
// default field of view.
func NewProjector(width, height int) Projector {
	return Projector{
		Width:  width,
		Height: height,
		HFOV:   DefaultHFOV,
		VFOV:   DefaultVFOV,
	}
}

// ToDepth projects p onto the depth image. ok is false when p is at or
// behind the sensor plane.
func (p Projector) ToDepth(pt Point3) (x, y float64, ok bool) {
	if pt.Z <= 0 {
		return 0, 0, false
	}
	xzFactor := 2 * math.Tan(p.HFOV/2)
	yzFactor := 2 * math.Tan(p.VFOV/2)

	x = (pt.X/pt.Z/xzFactor + 0.5) * float64(p.Width)
	y = (0.5 - pt.Y/pt.Z/yzFactor) * float64(p.Height)
	return x, y, true
}
