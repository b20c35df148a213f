package sensor

import (
	"io"
	"sync"
	"time"
)

// MockTracker is a test implementation of the Tracker interface.
// It plays back preconfigured frames and records tracking requests.
type MockTracker struct {
	frames   []*UserFrame
	index    int
	loop     bool
	err      error
	tracking []UserID
	closed   bool
	mu       sync.Mutex
}

// NewMockTracker creates a new MockTracker instance.
func NewMockTracker(frames ...*UserFrame) *MockTracker {
	return &MockTracker{frames: frames}
}

// SetFrames replaces the frame sequence and restarts playback.
func (m *MockTracker) SetFrames(frames ...*UserFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = frames
	m.index = 0
}

// SetLoop makes playback restart after the last frame.
func (m *MockTracker) SetLoop(loop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loop = loop
}

// SetError sets the error that will be returned by ReadFrame.
func (m *MockTracker) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ReadFrame returns the next configured frame, or io.EOF when exhausted.
func (m *MockTracker) ReadFrame() (*UserFrame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrTrackerClosed
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.index >= len(m.frames) {
		if !m.loop || len(m.frames) == 0 {
			return nil, io.EOF
		}
		m.index = 0
	}

	f := m.frames[m.index]
	m.index++
	return f, nil
}

// StartSkeletonTracking records the request.
func (m *MockTracker) StartSkeletonTracking(id UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracking = append(m.tracking, id)
	return nil
}

// TrackingRequests returns the user IDs passed to StartSkeletonTracking.
func (m *MockTracker) TrackingRequests() []UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]UserID(nil), m.tracking...)
}

// Close marks the tracker closed.
func (m *MockTracker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// NewFrame builds a frame without depth data holding the given users.
func NewFrame(index int64, users ...User) *UserFrame {
	return &UserFrame{
		Index:     index,
		Timestamp: time.UnixMilli(index * 33),
		Tracked:   users,
	}
}

// TrackedUser wraps a skeleton into a visible user with a box around it.
func TrackedUser(id UserID, s Skeleton) User {
	return User{
		ID:        id,
		IsVisible: true,
		Box: BoundingBox{
			Min: Point3{X: 220, Y: 60},
			Max: Point3{X: 420, Y: 440},
		},
		Skeleton: s,
	}
}

func p(x, y float64) Joint {
	return Joint{Position: Point3{X: x, Y: y, Z: 2000}, Confidence: 1}
}

// body returns a tracked skeleton standing 2m from the sensor with the arms
// hanging down.
func body() Skeleton {
	var s Skeleton
	s.State = SkeletonTracked
	s.Joints[Head] = p(0, 500)
	s.Joints[Neck] = p(0, 350)
	s.Joints[LeftShoulder] = p(-180, 300)
	s.Joints[RightShoulder] = p(180, 300)
	s.Joints[LeftElbow] = p(-200, 0)
	s.Joints[RightElbow] = p(200, 0)
	s.Joints[LeftHand] = p(-210, -250)
	s.Joints[RightHand] = p(210, -250)
	s.Joints[Torso] = p(0, 100)
	s.Joints[LeftHip] = p(-100, -150)
	s.Joints[RightHip] = p(100, -150)
	s.Joints[LeftKnee] = p(-100, -550)
	s.Joints[RightKnee] = p(100, -550)
	s.Joints[LeftFoot] = p(-100, -950)
	s.Joints[RightFoot] = p(100, -950)
	return s
}

// NeutralSkeleton returns a standing skeleton with the arms down.
func NeutralSkeleton() Skeleton {
	return body()
}

// BrunaSkeleton returns a skeleton with both arms raised straight overhead.
func BrunaSkeleton() Skeleton {
	s := body()
	s.Joints[LeftElbow] = p(-220, 600)
	s.Joints[LeftHand] = p(-260, 900)
	s.Joints[RightElbow] = p(220, 600)
	s.Joints[RightHand] = p(260, 900)
	return s
}

// NekoSkeleton returns a skeleton with both hands held up beside the face.
func NekoSkeleton() Skeleton {
	s := body()
	s.Joints[LeftElbow] = p(-250, 250)
	s.Joints[LeftHand] = p(-120, 450)
	s.Joints[RightElbow] = p(250, 250)
	s.Joints[RightHand] = p(120, 450)
	return s
}

// KaidanSkeleton returns a skeleton with the arms forming one diagonal line,
// left arm up and right arm down.
func KaidanSkeleton() Skeleton {
	s := body()
	s.Joints[LeftElbow] = p(-380, 500)
	s.Joints[LeftHand] = p(-580, 700)
	s.Joints[RightElbow] = p(380, 100)
	s.Joints[RightHand] = p(580, -100)
	return s
}

// MajokoSkeleton returns a skeleton with the right arm held out level and
// the left hand resting on the hip.
func MajokoSkeleton() Skeleton {
	s := body()
	s.Joints[RightElbow] = p(450, 300)
	s.Joints[RightHand] = p(720, 310)
	s.Joints[LeftElbow] = p(-330, 50)
	s.Joints[LeftHand] = p(-200, -120)
	return s
}

// Mirror flips a skeleton left to right, swapping the side joints.
func Mirror(s Skeleton) Skeleton {
	out := s
	swap := [][2]JointType{
		{LeftShoulder, RightShoulder},
		{LeftElbow, RightElbow},
		{LeftHand, RightHand},
		{LeftHip, RightHip},
		{LeftKnee, RightKnee},
		{LeftFoot, RightFoot},
	}
	for i := range out.Joints {
		out.Joints[i].Position.X = -out.Joints[i].Position.X
	}
	for _, pair := range swap {
		out.Joints[pair[0]], out.Joints[pair[1]] = out.Joints[pair[1]], out.Joints[pair[0]]
	}
	return out
}
