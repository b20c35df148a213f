package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/poseview/internal/sensor"
)

// DefaultMinConfidence is the joint confidence required for drawing.
const DefaultMinConfidence = 0.7

var (
	red   = color.RGBA{R: 255, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// limbs pairs the joints joined by a line.
var limbs = [][2]sensor.JointType{
	{sensor.Head, sensor.Neck},
	{sensor.Neck, sensor.LeftShoulder},
	{sensor.Neck, sensor.RightShoulder},
	{sensor.LeftShoulder, sensor.LeftElbow},
	{sensor.LeftElbow, sensor.LeftHand},
	{sensor.RightShoulder, sensor.RightElbow},
	{sensor.RightElbow, sensor.RightHand},
	{sensor.LeftShoulder, sensor.Torso},
	{sensor.RightShoulder, sensor.Torso},
	{sensor.Torso, sensor.LeftHip},
	{sensor.Torso, sensor.RightHip},
	{sensor.LeftHip, sensor.RightHip},
	{sensor.LeftHip, sensor.LeftKnee},
	{sensor.LeftKnee, sensor.LeftFoot},
	{sensor.RightHip, sensor.RightKnee},
	{sensor.RightKnee, sensor.RightFoot},
}

// JointPoint is a joint projected onto the depth image.
type JointPoint struct {
	Joint sensor.JointType
	Point image.Point
}

// Overlay draws skeletons, bounding boxes and labels onto Mats.
type Overlay struct {
	Projector     sensor.Projector
	MinConfidence float64
	JointRadius   int
	LineThickness int
	JointColor    color.RGBA
	BoxColor      color.RGBA
	TextColor     color.RGBA
}

// NewOverlay returns an Overlay for the given depth resolution.
func NewOverlay(width, height int) *Overlay {
	return &Overlay{
		Projector:     sensor.NewProjector(width, height),
		MinConfidence: DefaultMinConfidence,
		JointRadius:   5,
		LineThickness: 2,
		JointColor:    red,
		BoxColor:      red,
		TextColor:     white,
	}
}

// JointPoints returns the projected position of every joint that is
// confident enough to draw. Untracked skeletons yield nothing.
func (o *Overlay) JointPoints(u sensor.User) []JointPoint {
	if u.Skeleton.State != sensor.SkeletonTracked {
		return nil
	}

	var pts []JointPoint
	for i := 0; i < sensor.NumJoints; i++ {
		jt := sensor.JointType(i)
		if p, ok := o.project(u.Skeleton.Joint(jt)); ok {
			pts = append(pts, JointPoint{Joint: jt, Point: p})
		}
	}
	return pts
}

func (o *Overlay) project(j sensor.Joint) (image.Point, bool) {
	if j.Confidence < o.MinConfidence {
		return image.Point{}, false
	}
	x, y, ok := o.Projector.ToDepth(j.Position)
	if !ok {
		return image.Point{}, false
	}
	return image.Pt(int(x), int(y)), true
}

// DrawSkeleton draws the user's limbs and joints.
func (o *Overlay) DrawSkeleton(mat *gocv.Mat, u sensor.User) {
	pts := o.JointPoints(u)
	if len(pts) == 0 {
		return
	}

	var at [sensor.NumJoints]*image.Point
	for i := range pts {
		at[pts[i].Joint] = &pts[i].Point
	}

	for _, l := range limbs {
		a, b := at[l[0]], at[l[1]]
		if a == nil || b == nil {
			continue
		}
		gocv.Line(mat, *a, *b, o.JointColor, o.LineThickness)
	}
	for _, p := range pts {
		gocv.Circle(mat, p.Point, o.JointRadius, o.JointColor, -1)
	}
}

// BoxRect returns the user's box scaled from depth pixels to the target
// image. A scale of zero is treated as one.
func BoxRect(u sensor.User, scale float64) image.Rectangle {
	if scale == 0 {
		scale = 1
	}
	return image.Rect(
		int(u.Box.Min.X*scale), int(u.Box.Min.Y*scale),
		int(u.Box.Max.X*scale), int(u.Box.Max.Y*scale),
	)
}

// DrawBox draws the user's bounding box.
func (o *Overlay) DrawBox(mat *gocv.Mat, u sensor.User, scale float64) {
	r := BoxRect(u, scale)
	if r.Empty() {
		return
	}
	gocv.Rectangle(mat, r, o.BoxColor, o.LineThickness)
}

// DrawLabel writes text just above the user's bounding box.
func (o *Overlay) DrawLabel(mat *gocv.Mat, u sensor.User, text string, scale float64) {
	if text == "" {
		return
	}
	r := BoxRect(u, scale)
	y := r.Min.Y - 8
	if y < 16 {
		y = r.Min.Y + 20
	}
	gocv.PutText(mat, text, image.Pt(r.Min.X, y), gocv.FontHersheyPlain, 1.5, o.TextColor, 2)
}
