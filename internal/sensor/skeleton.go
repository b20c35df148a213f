// Package sensor provides the tracker interface and frame types consumed from a
// depth sensor's user-skeleton tracker.
package sensor

import "time"

// JointType indexes a tracked skeleton joint, following the tracker SDK order.
type JointType int

// Skeleton joint indices.
const (
	Head JointType = iota
	Neck
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftHand
	RightHand
	Torso
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftFoot
	RightFoot
	NumJoints = 15
)

var jointNames = [NumJoints]string{
	"head", "neck",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_hand", "right_hand",
	"torso",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_foot", "right_foot",
}

func (j JointType) String() string {
	if j < 0 || int(j) >= NumJoints {
		return "unknown"
	}
	return jointNames[j]
}

// Point3 is a position in sensor world space, in millimetres.
// +Y points up and +Z points away from the sensor.
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Joint is an estimated joint position with the tracker's confidence in [0,1].
type Joint struct {
	Position   Point3  `json:"position"`
	Confidence float64 `json:"confidence"`
}

// SkeletonState is the tracking state of a user's skeleton.
type SkeletonState int

const (
	SkeletonNone SkeletonState = iota
	SkeletonCalibrating
	SkeletonTracked
	SkeletonCalibrationError
)

func (s SkeletonState) String() string {
	switch s {
	case SkeletonCalibrating:
		return "calibrating"
	case SkeletonTracked:
		return "tracked"
	case SkeletonCalibrationError:
		return "calibration_error"
	default:
		return "none"
	}
}

// ParseSkeletonState maps a state name back to a SkeletonState.
// Unknown names map to SkeletonNone.
func ParseSkeletonState(s string) SkeletonState {
	switch s {
	case "calibrating":
		return SkeletonCalibrating
	case "tracked":
		return SkeletonTracked
	case "calibration_error":
		return SkeletonCalibrationError
	default:
		return SkeletonNone
	}
}

// Skeleton holds all joints of one user.
type Skeleton struct {
	State  SkeletonState
	Joints [NumJoints]Joint
}

// Joint returns the joint of the given type.
func (s *Skeleton) Joint(t JointType) Joint {
	return s.Joints[t]
}

// Tracked reports whether the skeleton is fully tracked.
func (s *Skeleton) Tracked() bool {
	return s.State == SkeletonTracked
}

// BoundingBox is a user's box in depth-image pixel coordinates.
type BoundingBox struct {
	Min Point3 `json:"min"`
	Max Point3 `json:"max"`
}

// UserID identifies a tracked user. Zero is the background label.
type UserID uint16

// User is one entry of the tracker's user list for a frame.
type User struct {
	ID        UserID
	IsNew     bool
	IsLost    bool
	IsVisible bool
	Box       BoundingBox
	Skeleton  Skeleton
}

// DepthFrame is a depth buffer in millimetres. Zero means no reading.
type DepthFrame struct {
	Width  int
	Height int
	Pixels []uint16
}

// Valid reports whether the frame has positive dimensions and a full buffer.
func (d DepthFrame) Valid() bool {
	return d.Width > 0 && d.Height > 0 && len(d.Pixels) == d.Width*d.Height
}

// UserMap holds the per-pixel user segmentation labels for a depth frame.
type UserMap struct {
	Width  int
	Height int
	Labels []UserID
}

// Matches reports whether the map covers the same pixels as the depth frame.
func (m UserMap) Matches(d DepthFrame) bool {
	return m.Width == d.Width && m.Height == d.Height && len(m.Labels) == len(d.Pixels)
}

// UserFrame is everything the tracker produces for one tick.
type UserFrame struct {
	Index     int64
	Timestamp time.Time
	Depth     DepthFrame
	Users     UserMap
	Tracked   []User
}
