package sensor

import "errors"

// ErrTrackerClosed is returned when reading from a tracker after Close.
var ErrTrackerClosed = errors.New("tracker is closed")

// Tracker defines the interface for user-skeleton tracker implementations.
type Tracker interface {
	// ReadFrame blocks until the next user frame is available.
	// Implementations backed by finite sources return io.EOF when exhausted.
	ReadFrame() (*UserFrame, error)

	// StartSkeletonTracking asks the tracker to begin skeleton tracking for a
	// newly detected user.
	StartSkeletonTracking(id UserID) error

	// Close releases any resources held by the tracker.
	Close() error
}

// Config holds configuration options for the bridge tracker.
type Config struct {
	// Command is the bridge executable followed by its arguments.
	Command []string

	// Width and Height are the requested depth stream resolution.
	Width  int
	Height int

	// FPS is the requested depth stream frame rate.
	FPS int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Width:  640,
		Height: 480,
		FPS:    30,
	}
}
