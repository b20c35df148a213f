package pose

import (
	"math"

	"github.com/ayusman/poseview/internal/sensor"
)

// Thresholds holds the tunable limits of the pose rules.
// Distances are in millimetres and angles in degrees.
type Thresholds struct {
	MinConfidence      float64 `json:"min_confidence"`
	HeadMargin         float64 `json:"head_margin"`
	StraightTolerance  float64 `json:"straight_tolerance"`
	CollinearTolerance float64 `json:"collinear_tolerance"`
	DiagonalMin        float64 `json:"diagonal_min"`
	DiagonalMax        float64 `json:"diagonal_max"`
	HorizontalMax      float64 `json:"horizontal_max"`
	ShoulderBand       float64 `json:"shoulder_band"`
	HipBand            float64 `json:"hip_band"`
	HipReach           float64 `json:"hip_reach"`
	FaceReach          float64 `json:"face_reach"`
}

// DefaultThresholds returns the thresholds the rules were tuned with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConfidence:      0.5,
		HeadMargin:         100,
		StraightTolerance:  25,
		CollinearTolerance: 25,
		DiagonalMin:        20,
		DiagonalMax:        70,
		HorizontalMax:      20,
		ShoulderBand:       150,
		HipBand:            150,
		HipReach:           200,
		FaceReach:          250,
	}
}

// Result is the outcome of classifying one skeleton.
type Result struct {
	Pose   Pose
	Reason string
}

// Classifier evaluates a fixed ladder of geometric rules over a skeleton.
// The first rule that holds names the pose.
type Classifier struct {
	th    Thresholds
	rules []rule
}

type rule struct {
	pose  Pose
	match func(c *Classifier, s *sensor.Skeleton) (bool, string)
}

// NewClassifier creates a Classifier using the given thresholds.
func NewClassifier(th Thresholds) *Classifier {
	return &Classifier{
		th: th,
		rules: []rule{
			{Bruna, (*Classifier).bruna},
			{Neko, (*Classifier).neko},
			{Kaidan, (*Classifier).kaidan},
			{Majoko, (*Classifier).majoko},
		},
	}
}

// Thresholds returns the classifier's thresholds.
func (c *Classifier) Thresholds() Thresholds {
	return c.th
}

// Classify returns the first pose whose rule holds for the skeleton, or None.
func (c *Classifier) Classify(s *sensor.Skeleton) Result {
	if s == nil || !s.Tracked() {
		return Result{Pose: None, Reason: "skeleton not tracked"}
	}

	for _, r := range c.rules {
		if ok, reason := r.match(c, s); ok {
			return Result{Pose: r.pose, Reason: reason}
		}
	}

	return Result{Pose: None}
}

// confident reports whether every listed joint meets the confidence floor.
func (c *Classifier) confident(s *sensor.Skeleton, joints ...sensor.JointType) bool {
	for _, j := range joints {
		if s.Joint(j).Confidence < c.th.MinConfidence {
			return false
		}
	}
	return true
}

// arm holds the joints of one side.
type arm struct {
	shoulder, elbow, hand, hip sensor.Point3
}

func (c *Classifier) arms(s *sensor.Skeleton) (left, right arm) {
	left = arm{
		shoulder: s.Joint(sensor.LeftShoulder).Position,
		elbow:    s.Joint(sensor.LeftElbow).Position,
		hand:     s.Joint(sensor.LeftHand).Position,
		hip:      s.Joint(sensor.LeftHip).Position,
	}
	right = arm{
		shoulder: s.Joint(sensor.RightShoulder).Position,
		elbow:    s.Joint(sensor.RightElbow).Position,
		hand:     s.Joint(sensor.RightHand).Position,
		hip:      s.Joint(sensor.RightHip).Position,
	}
	return left, right
}

func (c *Classifier) straight(a arm) bool {
	return Straight(a.shoulder, a.elbow, a.hand, c.th.StraightTolerance)
}

var armJoints = []sensor.JointType{
	sensor.LeftShoulder, sensor.LeftElbow, sensor.LeftHand,
	sensor.RightShoulder, sensor.RightElbow, sensor.RightHand,
}

func (c *Classifier) bruna(s *sensor.Skeleton) (bool, string) {
	if !c.confident(s, append(armJoints, sensor.Head)...) {
		return false, ""
	}
	head := s.Joint(sensor.Head).Position
	left, right := c.arms(s)

	if left.hand.Y-head.Y <= c.th.HeadMargin || right.hand.Y-head.Y <= c.th.HeadMargin {
		return false, ""
	}
	if !c.straight(left) || !c.straight(right) {
		return false, ""
	}
	return true, "both arms straight above head"
}

func (c *Classifier) neko(s *sensor.Skeleton) (bool, string) {
	if !c.confident(s, append(armJoints, sensor.Head)...) {
		return false, ""
	}
	head := s.Joint(sensor.Head).Position
	left, right := c.arms(s)

	for _, a := range []arm{left, right} {
		if a.hand.Y <= a.shoulder.Y || a.hand.Y >= head.Y+c.th.HeadMargin {
			return false, ""
		}
		if math.Abs(a.hand.X-head.X) > c.th.FaceReach {
			return false, ""
		}
		if a.elbow.Y >= a.hand.Y {
			return false, ""
		}
	}
	return true, "both hands raised beside face"
}

func (c *Classifier) kaidan(s *sensor.Skeleton) (bool, string) {
	if !c.confident(s, armJoints...) {
		return false, ""
	}
	left, right := c.arms(s)

	if !c.straight(left) || !c.straight(right) {
		return false, ""
	}

	spread := AngleDiff(Angle(left.shoulder, left.hand), Angle(right.shoulder, right.hand))
	if math.Abs(spread-180) > c.th.CollinearTolerance {
		return false, ""
	}

	tilt := Tilt(left.hand, right.hand)
	if tilt < c.th.DiagonalMin || tilt > c.th.DiagonalMax {
		return false, ""
	}
	return true, "arms form one diagonal line"
}

func (c *Classifier) majoko(s *sensor.Skeleton) (bool, string) {
	if !c.confident(s, append(armJoints, sensor.LeftHip, sensor.RightHip)...) {
		return false, ""
	}
	left, right := c.arms(s)

	if c.wand(right) && c.onHip(left) {
		return true, "right arm level, left hand on hip"
	}
	if c.wand(left) && c.onHip(right) {
		return true, "left arm level, right hand on hip"
	}
	return false, ""
}

// wand reports whether the arm is held out straight at shoulder height.
func (c *Classifier) wand(a arm) bool {
	return c.straight(a) &&
		Tilt(a.shoulder, a.hand) <= c.th.HorizontalMax &&
		math.Abs(a.hand.Y-a.shoulder.Y) <= c.th.ShoulderBand
}

func (c *Classifier) onHip(a arm) bool {
	return math.Abs(a.hand.Y-a.hip.Y) <= c.th.HipBand &&
		math.Abs(a.hand.X-a.hip.X) <= c.th.HipReach
}
