package pose

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ayusman/poseview/internal/sensor"
)

// DefaultConfirmFrames is the number of consecutive frames a pose must hold
// before it is confirmed.
const DefaultConfirmFrames = 5

// Phase is the stage of a Stabilizer.
type Phase int

const (
	NoPose Phase = iota
	Candidate
	Confirmed
)

func (p Phase) String() string {
	switch p {
	case Candidate:
		return "candidate"
	case Confirmed:
		return "confirmed"
	default:
		return "no_pose"
	}
}

// State is a Stabilizer state. Streak counts consecutive frames of Pose.
type State struct {
	Phase  Phase
	Pose   Pose
	Streak int
}

func (s State) String() string {
	switch s.Phase {
	case Candidate:
		return fmt.Sprintf("candidate(%s,%d)", s.Pose, s.Streak)
	case Confirmed:
		return fmt.Sprintf("confirmed(%s)", s.Pose)
	default:
		return "no_pose"
	}
}

// Transition describes the effect of one observation.
// Confirmed and Released are None unless the step confirmed or released a pose.
type Transition struct {
	From      State
	To        State
	Confirmed Pose
	Released  Pose
}

// Changed reports whether the step confirmed or released a pose.
func (t Transition) Changed() bool {
	return t.Confirmed != None || t.Released != None
}

// Stabilizer debounces per-frame classifications. A pose is confirmed after
// it is classified on N consecutive frames and stays confirmed until a
// different result arrives.
type Stabilizer struct {
	n     int
	state State
}

// NewStabilizer creates a Stabilizer confirming after n consecutive hits.
// Values below 1 are treated as 1.
func NewStabilizer(n int) *Stabilizer {
	if n < 1 {
		n = 1
	}
	return &Stabilizer{n: n, state: State{Phase: NoPose, Pose: None}}
}

// State returns the current state.
func (s *Stabilizer) State() State {
	return s.state
}

// Current returns the confirmed pose, or None.
func (s *Stabilizer) Current() Pose {
	if s.state.Phase == Confirmed {
		return s.state.Pose
	}
	return None
}

// Observe feeds one frame's classification.
func (s *Stabilizer) Observe(p Pose) Transition {
	t := Transition{From: s.state, Confirmed: None, Released: None}

	if p == "" || p == None {
		s.reset(&t)
		return t
	}

	switch s.state.Phase {
	case Confirmed:
		if s.state.Pose == p {
			t.To = s.state
			return t
		}
		t.Released = s.state.Pose
		s.begin(p, &t)
	case Candidate:
		if s.state.Pose == p {
			s.state.Streak++
			if s.state.Streak >= s.n {
				s.state = State{Phase: Confirmed, Pose: p, Streak: s.state.Streak}
				t.Confirmed = p
			}
		} else {
			s.begin(p, &t)
		}
	default:
		s.begin(p, &t)
	}

	t.To = s.state
	return t
}

// Cancel drops back to NoPose, releasing any confirmed pose.
func (s *Stabilizer) Cancel() Transition {
	t := Transition{From: s.state, Confirmed: None, Released: None}
	s.reset(&t)
	return t
}

func (s *Stabilizer) begin(p Pose, t *Transition) {
	s.state = State{Phase: Candidate, Pose: p, Streak: 1}
	if s.n <= 1 {
		s.state.Phase = Confirmed
		t.Confirmed = p
	}
}

func (s *Stabilizer) reset(t *Transition) {
	if s.state.Phase == Confirmed {
		t.Released = s.state.Pose
	}
	s.state = State{Phase: NoPose, Pose: None}
	t.To = s.state
}

// UserTransition is a Transition tagged with the user it belongs to.
type UserTransition struct {
	User sensor.UserID
	Transition
}

// Sessions keeps one Stabilizer per tracked user.
type Sessions struct {
	n     int
	users map[sensor.UserID]*Stabilizer
	mu    sync.Mutex
}

// NewSessions creates an empty set of per-user stabilizers.
func NewSessions(n int) *Sessions {
	return &Sessions{
		n:     n,
		users: make(map[sensor.UserID]*Stabilizer),
	}
}

// Observe feeds a classification for the given user.
func (ss *Sessions) Observe(id sensor.UserID, p Pose) UserTransition {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	st, ok := ss.users[id]
	if !ok {
		st = NewStabilizer(ss.n)
		ss.users[id] = st
	}
	return UserTransition{User: id, Transition: st.Observe(p)}
}

// Drop cancels and forgets the user's stabilizer.
func (ss *Sessions) Drop(id sensor.UserID) UserTransition {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	st, ok := ss.users[id]
	if !ok {
		return UserTransition{User: id, Transition: Transition{Confirmed: None, Released: None}}
	}
	delete(ss.users, id)
	return UserTransition{User: id, Transition: st.Cancel()}
}

// Reset drops every user.
func (ss *Sessions) Reset() []UserTransition {
	ss.mu.Lock()
	ids := make([]sensor.UserID, 0, len(ss.users))
	for id := range ss.users {
		ids = append(ids, id)
	}
	ss.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []UserTransition
	for _, id := range ids {
		out = append(out, ss.Drop(id))
	}
	return out
}

// Active returns the confirmed pose of every user holding one.
func (ss *Sessions) Active() map[sensor.UserID]Pose {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	active := make(map[sensor.UserID]Pose)
	for id, st := range ss.users {
		if p := st.Current(); p != None {
			active[id] = p
		}
	}
	return active
}

// Len returns the number of users with a stabilizer.
func (ss *Sessions) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.users)
}
