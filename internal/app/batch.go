package app

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/poseview/internal/pose"
	"github.com/ayusman/poseview/internal/recording"
	"github.com/ayusman/poseview/internal/sensor"
)

// Summary is the result of classifying a whole recording.
type Summary struct {
	Frames int
	// Counts holds the confirmations per user and pose.
	Counts map[sensor.UserID]map[pose.Pose]int
	// Holds holds, per pose, how many frames each confirmation lasted.
	Holds map[pose.Pose][]float64
}

// Users returns the users with at least one confirmation, in ID order.
func (s *Summary) Users() []sensor.UserID {
	ids := make([]sensor.UserID, 0, len(s.Counts))
	for id := range s.Counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HoldStats returns the mean and standard deviation of the hold length of p
// in frames. The deviation is zero with fewer than two holds.
func (s *Summary) HoldStats(p pose.Pose) (mean, std float64) {
	h := s.Holds[p]
	switch len(h) {
	case 0:
		return 0, 0
	case 1:
		return h[0], 0
	}
	return stat.MeanStdDev(h, nil)
}

// ClassifyRecording runs the classifier and per-user stabilizers over every
// frame of the recording at path. progress, if set, is called once per frame.
func ClassifyRecording(path string, th pose.Thresholds, confirmFrames int, progress func()) (*Summary, error) {
	if th == (pose.Thresholds{}) {
		th = pose.DefaultThresholds()
	}
	classifier := pose.NewClassifier(th)
	sessions := pose.NewSessions(confirmFrames)

	sum := &Summary{
		Counts: make(map[sensor.UserID]map[pose.Pose]int),
		Holds:  make(map[pose.Pose][]float64),
	}

	type hold struct {
		pose  pose.Pose
		start int
	}
	open := make(map[sensor.UserID]hold)

	apply := func(t pose.UserTransition, frame int) {
		if t.Released != pose.None {
			if h, ok := open[t.User]; ok {
				sum.Holds[h.pose] = append(sum.Holds[h.pose], float64(frame-h.start))
				delete(open, t.User)
			}
		}
		if t.Confirmed != pose.None {
			if sum.Counts[t.User] == nil {
				sum.Counts[t.User] = make(map[pose.Pose]int)
			}
			sum.Counts[t.User][t.Confirmed]++
			open[t.User] = hold{pose: t.Confirmed, start: frame}
		}
	}

	err := recording.Scan(path, func(f *sensor.UserFrame) error {
		frame := sum.Frames
		sum.Frames++
		for _, u := range f.Tracked {
			if u.IsLost {
				apply(sessions.Drop(u.ID), frame)
				continue
			}
			if u.IsNew {
				continue
			}
			r := classifier.Classify(&u.Skeleton)
			apply(sessions.Observe(u.ID, r.Pose), frame)
		}
		if progress != nil {
			progress()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, t := range sessions.Reset() {
		apply(t, sum.Frames)
	}
	return sum, nil
}
