package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/poseview/internal/pose"
)

// EventKind tells whether an event confirmed or released a pose.
type EventKind string

const (
	EventConfirmed EventKind = "confirmed"
	EventReleased  EventKind = "released"
)

// Event is a pose confirmation or release for one user.
type Event struct {
	ID         string
	SessionID  string
	UserID     int
	Pose       pose.Pose
	Kind       EventKind
	FrameIndex int64
	CreatedAt  time.Time
}

// EventRepository provides operations on pose events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Record inserts e, filling in its ID and creation time when unset.
func (r *EventRepository) Record(e *Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO pose_events (id, session_id, user_id, pose, kind, frame_index, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.UserID, string(e.Pose), string(e.Kind), e.FrameIndex, e.CreatedAt,
	)
	return err
}

// ListBySession returns a session's events in the order they happened.
func (r *EventRepository) ListBySession(sessionID string) ([]*Event, error) {
	return r.query(
		`SELECT id, session_id, user_id, pose, kind, frame_index, created_at
		 FROM pose_events WHERE session_id = ? ORDER BY created_at, rowid`,
		sessionID,
	)
}

// Recent returns up to limit events across all sessions, newest first.
func (r *EventRepository) Recent(limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.query(
		`SELECT id, session_id, user_id, pose, kind, frame_index, created_at
		 FROM pose_events ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
}

// CountByPose counts confirmations per pose. An empty sessionID counts
// across all sessions.
func (r *EventRepository) CountByPose(sessionID string) (map[pose.Pose]int, error) {
	rows, err := r.db.Query(
		`SELECT pose, COUNT(*) FROM pose_events
		 WHERE kind = ? AND (? = '' OR session_id = ?)
		 GROUP BY pose`,
		string(EventConfirmed), sessionID, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[pose.Pose]int)
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		counts[pose.Pose(p)] = n
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

func (r *EventRepository) query(q string, args ...any) ([]*Event, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var p, kind string

		err := rows.Scan(&e.ID, &e.SessionID, &e.UserID, &p, &kind, &e.FrameIndex, &e.CreatedAt)
		if err != nil {
			return nil, err
		}

		e.Pose = pose.Pose(p)
		e.Kind = EventKind(kind)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
