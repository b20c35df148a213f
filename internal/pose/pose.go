// Package pose classifies tracked skeletons into named poses and debounces
// the per-frame result.
package pose

import (
	"errors"
	"strings"
)

// ErrUnknownPose is returned when parsing a name that is not a known pose.
var ErrUnknownPose = errors.New("unknown pose")

// Pose is a named body pose.
type Pose string

const (
	None   Pose = "NONE"
	Majoko Pose = "MAJOKO"
	Kaidan Pose = "KAIDAN"
	Bruna  Pose = "BRUNA"
	Neko   Pose = "NEKO"
)

// All returns the named poses in the order the classifier tries them.
func All() []Pose {
	return []Pose{Bruna, Neko, Kaidan, Majoko}
}

// Parse returns the pose with the given name, ignoring case.
func Parse(s string) (Pose, error) {
	name := Pose(strings.ToUpper(strings.TrimSpace(s)))
	if name == None {
		return None, nil
	}
	for _, p := range All() {
		if p == name {
			return p, nil
		}
	}
	return None, ErrUnknownPose
}

func (p Pose) String() string {
	return string(p)
}
