package sensor

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// jsonFrame is the line-oriented JSON form of a UserFrame shared by the
// bridge process and recordings.
type jsonFrame struct {
	Index       int64      `json:"index"`
	TimestampMs int64      `json:"timestamp_ms"`
	Width       int        `json:"width,omitempty"`
	Height      int        `json:"height,omitempty"`
	Depth       []byte     `json:"depth,omitempty"`
	Labels      []byte     `json:"labels,omitempty"`
	Users       []jsonUser `json:"users"`
	Error       string     `json:"error,omitempty"`
}

type jsonUser struct {
	ID       uint16       `json:"id"`
	New      bool         `json:"new"`
	Lost     bool         `json:"lost"`
	Visible  bool         `json:"visible"`
	Box      BoundingBox  `json:"box"`
	Skeleton jsonSkeleton `json:"skeleton"`
}

type jsonSkeleton struct {
	State  string      `json:"state"`
	Joints []jsonJoint `json:"joints"`
}

type jsonJoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Confidence float64 `json:"confidence"`
}

// BridgeError is an error reported by the bridge process inside a frame line.
type BridgeError struct {
	Message string
}

func (e *BridgeError) Error() string {
	return "bridge: " + e.Message
}

// MarshalFrame encodes a frame as a single JSON line without the trailing newline.
func MarshalFrame(f *UserFrame) ([]byte, error) {
	if f == nil {
		return nil, errors.New("nil frame")
	}

	jf := jsonFrame{
		Index:       f.Index,
		TimestampMs: f.Timestamp.UnixMilli(),
		Users:       make([]jsonUser, len(f.Tracked)),
	}

	if f.Depth.Valid() {
		jf.Width = f.Depth.Width
		jf.Height = f.Depth.Height
		jf.Depth = packUint16(f.Depth.Pixels)
		if f.Users.Matches(f.Depth) {
			labels := make([]uint16, len(f.Users.Labels))
			for i, l := range f.Users.Labels {
				labels[i] = uint16(l)
			}
			jf.Labels = packUint16(labels)
		}
	}

	for i, u := range f.Tracked {
		ju := jsonUser{
			ID:      uint16(u.ID),
			New:     u.IsNew,
			Lost:    u.IsLost,
			Visible: u.IsVisible,
			Box:     u.Box,
			Skeleton: jsonSkeleton{
				State:  u.Skeleton.State.String(),
				Joints: make([]jsonJoint, NumJoints),
			},
		}
		for j, joint := range u.Skeleton.Joints {
			ju.Skeleton.Joints[j] = jsonJoint{
				X:          joint.Position.X,
				Y:          joint.Position.Y,
				Z:          joint.Position.Z,
				Confidence: joint.Confidence,
			}
		}
		jf.Users[i] = ju
	}

	return json.Marshal(jf)
}

// UnmarshalFrame decodes one JSON frame line. A line carrying an error
// field is returned as a *BridgeError.
func UnmarshalFrame(line []byte) (*UserFrame, error) {
	var jf jsonFrame
	if err := json.Unmarshal(line, &jf); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if jf.Error != "" {
		return nil, &BridgeError{Message: jf.Error}
	}

	f := &UserFrame{
		Index:     jf.Index,
		Timestamp: time.UnixMilli(jf.TimestampMs),
		Tracked:   make([]User, len(jf.Users)),
	}

	if len(jf.Depth) > 0 {
		pixels, err := unpackUint16(jf.Depth)
		if err != nil {
			return nil, fmt.Errorf("depth: %w", err)
		}
		f.Depth = DepthFrame{Width: jf.Width, Height: jf.Height, Pixels: pixels}
	}

	if len(jf.Labels) > 0 {
		raw, err := unpackUint16(jf.Labels)
		if err != nil {
			return nil, fmt.Errorf("labels: %w", err)
		}
		labels := make([]UserID, len(raw))
		for i, l := range raw {
			labels[i] = UserID(l)
		}
		f.Users = UserMap{Width: jf.Width, Height: jf.Height, Labels: labels}
	}

	for i, ju := range jf.Users {
		f.Tracked[i] = ju.toUser()
	}

	return f, nil
}

func (u jsonUser) toUser() User {
	user := User{
		ID:        UserID(u.ID),
		IsNew:     u.New,
		IsLost:    u.Lost,
		IsVisible: u.Visible,
		Box:       u.Box,
	}
	user.Skeleton.State = ParseSkeletonState(u.Skeleton.State)

	for i := 0; i < NumJoints && i < len(u.Skeleton.Joints); i++ {
		j := u.Skeleton.Joints[i]
		user.Skeleton.Joints[i] = Joint{
			Position:   Point3{X: j.X, Y: j.Y, Z: j.Z},
			Confidence: j.Confidence,
		}
	}

	return user
}

func packUint16(v []uint16) []byte {
	b := make([]byte, len(v)*2)
	for i, x := range v {
		binary.LittleEndian.PutUint16(b[i*2:], x)
	}
	return b
}

func unpackUint16(b []byte) ([]uint16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("odd byte length %d", len(b))
	}
	v := make([]uint16, len(b)/2)
	for i := range v {
		v[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return v, nil
}
